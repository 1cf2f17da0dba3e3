package llm

import (
	"fmt"
	"net/http"
)

// APIError represents an error returned by the generation API.
type APIError struct {
	// Provider is the name of the provider (e.g. "gemini").
	Provider string
	// StatusCode is the HTTP status code returned by the API. Zero means
	// no HTTP response was received.
	StatusCode int
	// Status is the provider's error status string (e.g.
	// "RESOURCE_EXHAUSTED"), when available.
	Status string
	// Message is the error message from the API.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: API error (status %d, %s): %s", e.Provider, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the HTTP status code of the failed call. It allows
// retry policies to classify the error without importing this package.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsTransient returns true if the error may succeed on retry: rate
// limiting (429), server errors (5xx), and network errors (StatusCode 0).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}
