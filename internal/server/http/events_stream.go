package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperlens/paper-analysis-service/internal/pipeline"
)

const (
	// sseHeartbeatInterval is how often a comment line keeps the
	// connection alive through proxies.
	sseHeartbeatInterval = 15 * time.Second

	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 30 * time.Minute
)

// streamEvents handles GET /api/v1/sessions/{sessionID}/events (SSE).
// The stream opens with a snapshot of the current session state, then
// forwards run events until the run finishes or the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	// Replay the current state so late subscribers start consistent.
	snap := session.Snapshot()
	sendSSEEvent(w, flusher, pipeline.Event{Type: EventTypeSnapshot, Session: snap})

	// A session that is already idle has nothing left to stream.
	if !snap.IsAnalyzing && !snap.IsSearching {
		return
	}

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadlineTimer.C:
			s.logger.Warn().
				Str("session_id", session.ID()).
				Msg("SSE stream max duration exceeded")
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case event, open := <-events:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, event)
			if event.Type == pipeline.EventDone {
				return
			}
		}
	}
}

// EventTypeSnapshot is the synthetic event that opens every stream.
const EventTypeSnapshot pipeline.EventType = "snapshot"

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event pipeline.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	flusher.Flush()
}
