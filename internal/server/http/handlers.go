package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// Validation constants.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for JSON request bodies
	maxMessageLength   = 10000
	maxHistoryLength   = 50
	uploadFieldName    = "file"
)

// createSession handles POST /api/v1/sessions. It accepts a multipart
// document upload, extracts its text, and starts an analysis run. The
// run is asynchronous: clients follow it via the session snapshot or the
// event stream.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	fileName, text, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	session, err := s.manager.Create(fileName, text)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

// replaceSession handles PUT /api/v1/sessions/{sessionID}. Uploading a
// new document into an existing session cancels the run in flight and
// starts over.
func (s *Server) replaceSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	fileName, text, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	session, err := s.manager.Replace(sessionID, fileName, text)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

// getSession handles GET /api/v1/sessions/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// deleteSession handles DELETE /api/v1/sessions/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// chat handles POST /api/v1/sessions/{sessionID}/chat.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("message must be at most %d characters", maxMessageLength))
		return
	}
	if len(req.History) > maxHistoryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("history must have at most %d entries", maxHistoryLength))
		return
	}

	reply, err := s.manager.Chat(r.Context(), sessionID, req.Message, req.History)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// getReferences handles GET /api/v1/sessions/{sessionID}/references.
func (s *Server) getReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.manager.References(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if refs == nil {
		refs = []domain.Reference{}
	}
	writeJSON(w, http.StatusOK, referencesResponse{References: refs})
}

// readUpload reads the multipart document upload and extracts its text.
// It writes the error response itself and reports success via ok.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (fileName, text string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return "", "", false
		}
		writeError(w, http.StatusBadRequest, "multipart file field is required")
		return "", "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return "", "", false
	}

	text, err = s.extract(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("file_name", header.Filename).Msg("text extraction failed")
		writeError(w, http.StatusUnprocessableEntity, "could not extract text from the uploaded document")
		return "", "", false
	}

	return header.Filename, text, true
}

// writeDomainError maps a domain error to an HTTP error response.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrEmptyDocument):
		writeError(w, http.StatusUnprocessableEntity, "document contains no extractable text")
	case errors.Is(err, domain.ErrNoAnalysis):
		writeError(w, http.StatusConflict, "paper analysis is not available yet")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
