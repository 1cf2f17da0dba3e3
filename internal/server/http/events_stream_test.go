package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEventsUnknownSession(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEventsIdleSessionSendsSnapshot(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+snap.ID+"/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: snapshot\n"), "stream must open with the snapshot event")
	assert.Contains(t, body, `"id":"`+snap.ID+`"`)
	// The run already finished, so the stream closes after the snapshot.
	assert.Equal(t, 1, strings.Count(body, "event: "))
}
