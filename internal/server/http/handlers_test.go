package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/observability"
	"github.com/paperlens/paper-analysis-service/internal/pipeline"
	"github.com/paperlens/paper-analysis-service/internal/retry"
)

// promauto registers with the global registry, so the package shares one
// metrics instance across tests.
var testMetrics = observability.NewMetrics("test_httpserver")

type stubAnalyzer struct {
	result *domain.AnalysisResult
	err    error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, text string) (*domain.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSearcher struct {
	papers []domain.RelatedPaper
	err    error
}

func (s *stubSearcher) Search(ctx context.Context, text string) ([]domain.RelatedPaper, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.papers, nil
}

type stubClassifier struct{}

func (s *stubClassifier) Classify(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper) ([]domain.RelatedPaper, error) {
	return papers, nil
}

type stubAssistant struct {
	reply string
	err   error
}

func (s *stubAssistant) Reply(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper, history []domain.ChatMessage, question string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubExtractor struct {
	refs []domain.Reference
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, text string) ([]domain.Reference, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.refs, nil
}

type serverOptions struct {
	analyzer  *stubAnalyzer
	searcher  *stubSearcher
	assistant *stubAssistant
	extractor *stubExtractor
	textFn    TextExtractor
	maxUpload int64
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()

	if opts.analyzer == nil {
		opts.analyzer = &stubAnalyzer{result: &domain.AnalysisResult{Title: "Test Study"}}
	}
	if opts.searcher == nil {
		opts.searcher = &stubSearcher{papers: []domain.RelatedPaper{}}
	}
	if opts.assistant == nil {
		opts.assistant = &stubAssistant{reply: "answer"}
	}
	if opts.extractor == nil {
		opts.extractor = &stubExtractor{}
	}
	if opts.textFn == nil {
		opts.textFn = func(data []byte) (string, error) { return string(data), nil }
	}

	orch := pipeline.NewOrchestrator(opts.analyzer, opts.searcher, &stubClassifier{}, testMetrics, zerolog.Nop()).
		WithStagger(time.Millisecond).
		WithPolicy(retry.Policy{Attempts: 0})
	manager := pipeline.NewManager(orch, opts.assistant, opts.extractor, testMetrics, zerolog.Nop())
	t.Cleanup(manager.Close)

	return NewServer(Config{Address: ":0", MaxUploadBytes: opts.maxUpload}, manager, opts.textFn, zerolog.Nop())
}

func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadFieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func createTestSession(t *testing.T, s *Server) pipeline.Snapshot {
	t.Helper()
	body, contentType := multipartUpload(t, "study.pdf", "document text")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.ID)
	return snap
}

func waitForIdle(t *testing.T, s *Server, sessionID string) pipeline.Snapshot {
	t.Helper()
	var snap pipeline.Snapshot
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sessionID, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			return false
		}
		return !snap.IsAnalyzing && !snap.IsSearching
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	assert.Equal(t, "study.pdf", snap.FileName)

	final := waitForIdle(t, s, snap.ID)
	require.NotNil(t, final.Analysis)
	assert.Equal(t, "Test Study", final.Analysis.Title)
	assert.Equal(t, pipeline.StatusNoResults, final.SearchStatus)
}

func TestCreateSessionMissingFile(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionExtractionFails(t *testing.T) {
	s := newTestServer(t, serverOptions{
		textFn: func(data []byte) (string, error) { return "", errors.New("not a PDF") },
	})

	body, contentType := multipartUpload(t, "broken.pdf", "garbage")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateSessionEmptyText(t *testing.T) {
	s := newTestServer(t, serverOptions{
		textFn: func(data []byte) (string, error) { return "", nil },
	})

	body, contentType := multipartUpload(t, "empty.pdf", "anything")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/unknown", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplaceSession(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	body, contentType := multipartUpload(t, "revised.pdf", "revised text")
	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+snap.ID+"/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var replaced pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replaced))
	assert.Equal(t, snap.ID, replaced.ID)
	assert.Equal(t, "revised.pdf", replaced.FileName)
	assert.True(t, replaced.IsAnalyzing)
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+snap.ID+"/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+snap.ID, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat(t *testing.T) {
	s := newTestServer(t, serverOptions{
		assistant: &stubAssistant{reply: "The sample size was 120."},
	})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	payload := `{"message":"What was the sample size?","history":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+snap.ID+"/chat", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The sample size was 120.", resp.Reply)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":"  "}`},
		{"invalid JSON", `{not json`},
		{"oversized message", `{"message":"` + strings.Repeat("x", maxMessageLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+snap.ID+"/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatNoAnalysis(t *testing.T) {
	s := newTestServer(t, serverOptions{
		assistant: &stubAssistant{err: domain.ErrNoAnalysis},
	})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+snap.ID+"/chat", strings.NewReader(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetReferences(t *testing.T) {
	s := newTestServer(t, serverOptions{
		extractor: &stubExtractor{refs: []domain.Reference{
			{Title: "Foundations of Sleep Research", Author: "Doe, J.", Year: "2019"},
		}},
	})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+snap.ID+"/references", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp referencesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.References, 1)
	assert.Equal(t, "Foundations of Sleep Research", resp.References[0].Title)
}

func TestGetReferencesEmpty(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	snap := createTestSession(t, s)
	waitForIdle(t, s, snap.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+snap.ID+"/references", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"references":[]}`, rec.Body.String())
}
