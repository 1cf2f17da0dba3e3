package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paper-analysis-service/internal/observability"
)

// Registered once so repeated client construction does not collide on
// collector registration.
var testMetrics = observability.NewMetrics("test_llm")

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiClient(GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: srv.URL,
	}, testMetrics, zerolog.Nop())
}

func candidateBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}, "role": "model"}},
		},
	})
	return string(b)
}

func TestGeminiClientGenerate(t *testing.T) {
	t.Run("returns candidate text", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, candidateBody(`{"title": "Test"}`))
		})

		resp, err := client.Generate(context.Background(), Request{
			Operation: "analyze",
			Prompt:    "analyze this",
		})
		require.NoError(t, err)
		assert.Equal(t, `{"title": "Test"}`, resp.Text)
	})

	t.Run("sends schema config when schema set", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			genCfg, ok := req["generationConfig"].(map[string]any)
			require.True(t, ok, "generationConfig missing")
			assert.Equal(t, "application/json", genCfg["responseMimeType"])
			assert.NotNil(t, genCfg["responseSchema"])
			assert.Nil(t, req["tools"])

			io.WriteString(w, candidateBody(`{}`))
		})

		_, err := client.Generate(context.Background(), Request{
			Prompt: "p",
			Schema: &Schema{Type: TypeObject},
		})
		require.NoError(t, err)
	})

	t.Run("sends search tool and drops schema when grounding", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			tools, ok := req["tools"].([]any)
			require.True(t, ok, "tools missing")
			require.Len(t, tools, 1)
			assert.Contains(t, tools[0], "google_search")
			assert.Nil(t, req["generationConfig"])

			io.WriteString(w, candidateBody("[]"))
		})

		_, err := client.Generate(context.Background(), Request{
			Prompt:    "search",
			Schema:    &Schema{Type: TypeArray},
			UseSearch: true,
		})
		require.NoError(t, err)
	})

	t.Run("collects grounding sources", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{
				"candidates": [{
					"content": {"parts": [{"text": "[]"}], "role": "model"},
					"groundingMetadata": {
						"groundingChunks": [
							{"web": {"uri": "https://example.org/p1", "title": "P1"}},
							{"web": {"uri": "", "title": "empty"}}
						]
					}
				}]
			}`)
		})

		resp, err := client.Generate(context.Background(), Request{Prompt: "p", UseSearch: true})
		require.NoError(t, err)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "https://example.org/p1", resp.Sources[0].URL)
	})

	t.Run("maps quota errors to APIError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error": {"code": 429, "message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`)
		})

		_, err := client.Generate(context.Background(), Request{Prompt: "p"})
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)
		assert.True(t, apiErr.IsTransient())
	})

	t.Run("errors on empty candidates", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates": []}`)
		})

		_, err := client.Generate(context.Background(), Request{Prompt: "p"})
		assert.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, candidateBody("x"))
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Generate(ctx, Request{Prompt: "p"})
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 0, apiErr.StatusCode)
	})
}

func TestAPIErrorClassification(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 0}).IsTransient())
	assert.True(t, (&APIError{StatusCode: 429}).IsTransient())
	assert.True(t, (&APIError{StatusCode: 503}).IsTransient())
	assert.False(t, (&APIError{StatusCode: 400}).IsTransient())
	assert.Equal(t, 429, (&APIError{StatusCode: 429}).HTTPStatus())
}
