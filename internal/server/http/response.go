package httpserver

import (
	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// chatRequest is the JSON request body for a chat turn.
type chatRequest struct {
	Message string               `json:"message"`
	History []domain.ChatMessage `json:"history,omitempty"`
}

// chatResponse is the JSON response for a chat turn.
type chatResponse struct {
	Reply string `json:"reply"`
}

// referencesResponse is the JSON response for a bibliography request.
type referencesResponse struct {
	References []domain.Reference `json:"references"`
}
