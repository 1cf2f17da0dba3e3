package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
	"github.com/paperlens/paper-analysis-service/internal/observability"
	"github.com/paperlens/paper-analysis-service/internal/papersources"
	"github.com/paperlens/paper-analysis-service/internal/retry"
)

// Registered once so repeated Searcher construction does not collide on
// collector registration.
var testMetrics = observability.NewMetrics("test_search")

// fakeLLM dispatches canned responses by operation and records requests.
type fakeLLM struct {
	mu       sync.Mutex
	handlers map[string]func(llm.Request) (*llm.Response, error)
	requests []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.handlers[req.Operation]
	f.mu.Unlock()
	if handler == nil {
		return nil, errors.New("unexpected operation: " + req.Operation)
	}
	return handler(req)
}

func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Operation == operation {
			n++
		}
	}
	return n
}

// fakeSource is a scripted papersources.Source.
type fakeSource struct {
	mu      sync.Mutex
	papers  []domain.RelatedPaper
	err     error
	queries []string
}

func (f *fakeSource) Search(_ context.Context, query string) ([]domain.RelatedPaper, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.papers, f.err
}

func (f *fakeSource) Name() string { return "fake" }

func fastSearchPolicy() retry.Policy {
	return retry.Policy{
		Attempts:     1,
		InitialDelay: time.Millisecond,
		IsRateLimit:  func(error) bool { return false },
	}
}

func fastSearchConfig() Config {
	cfg := DefaultConfig()
	cfg.InterQueryPause = time.Millisecond
	return cfg
}

func queriesResponse() *llm.Response {
	return &llm.Response{Text: `{"queries": ["q one", "q two", "q three", "q four", "q five", "q six"]}`}
}

func TestSearcherSearch(t *testing.T) {
	t.Run("runs three of six queries and tags results", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return queriesResponse(), nil
			},
			"grounded-search": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `[
					{"title": "A Long Enough Paper Title", "authors": "A. Author", "year": 2021,
					 "journal": "Nature", "methodology": "RCT", "finding": "Works well.", "url": "https://x/1"}
				]`}, nil
			},
		}}

		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "paper text")
		require.NoError(t, err)

		assert.Equal(t, 3, client.calls("grounded-search"))
		// Same paper from each query collapses to one.
		require.Len(t, papers, 1)
		assert.Equal(t, domain.StatusRelated, papers[0].Status)
		assert.Equal(t, "Pending analysis", papers[0].StatusText)
		require.NotNil(t, papers[0].Comparison)
		assert.Equal(t, "Analyzing...", papers[0].Comparison.Reason)
	})

	t.Run("filters out short titles, old years, and missing authors", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `{"queries": ["only one"]}`}, nil
			},
			"grounded-search": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `[
					{"title": "Short", "authors": "A", "year": 2021},
					{"title": "Old But Long Enough Title", "authors": "A", "year": 2005},
					{"title": "No Authors But Long Title", "authors": "", "year": 2021},
					{"title": "A Valid Recent Paper Title", "authors": "B. Author", "year": "2022"}
				]`}, nil
			},
		}}

		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "text")
		require.NoError(t, err)
		require.Len(t, papers, 1)
		assert.Equal(t, "A Valid Recent Paper Title", papers[0].Title)
		assert.Equal(t, 2022, papers[0].Year)
	})

	t.Run("query generation failure aborts the search", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return nil, errors.New("model unavailable")
			},
		}}

		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		_, err := s.Search(context.Background(), "text")
		require.Error(t, err)
		// Initial attempt plus one retry.
		assert.Equal(t, 2, client.calls("generate-queries"))
	})

	t.Run("no queries means empty result without grounded calls", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `{"queries": []}`}, nil
			},
		}}

		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "text")
		require.NoError(t, err)
		assert.Empty(t, papers)
		assert.Zero(t, client.calls("grounded-search"))
	})

	t.Run("failed grounded query is skipped, others continue", func(t *testing.T) {
		var grounded int
		var mu sync.Mutex
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return queriesResponse(), nil
			},
			"grounded-search": func(llm.Request) (*llm.Response, error) {
				mu.Lock()
				grounded++
				n := grounded
				mu.Unlock()
				if n <= 2 {
					// First query fails through its whole retry budget.
					return nil, errors.New("quota trouble")
				}
				return &llm.Response{Text: `[{"title": "Recovered Result Paper Title", "authors": "C", "year": 2020}]`}, nil
			},
		}}

		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "text")
		require.NoError(t, err)
		require.Len(t, papers, 1)
		assert.Equal(t, "Recovered Result Paper Title", papers[0].Title)
	})

	t.Run("fallback sources receive the first two queries", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return queriesResponse(), nil
			},
			"grounded-search": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `[]`}, nil
			},
		}}
		source := &fakeSource{papers: []domain.RelatedPaper{
			{Title: "Fallback Paper With Long Title", Authors: "D", Year: 2019, Journal: "arXiv Preprint"},
		}}

		s := New(client, []papersources.Source{source}, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "text")
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"q one", "q two"}, source.queries)
		require.Len(t, papers, 1)
		assert.Equal(t, "Fallback Paper With Long Title", papers[0].Title)
	})

	t.Run("fallback source errors are non-fatal", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `{"queries": ["q"]}`}, nil
			},
			"grounded-search": func(llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `[{"title": "Grounded Result Paper Title", "authors": "E", "year": 2023}]`}, nil
			},
		}}
		source := &fakeSource{err: errors.New("arxiv down")}

		s := New(client, []papersources.Source{source}, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		papers, err := s.Search(context.Background(), "text")
		require.NoError(t, err)
		require.Len(t, papers, 1)
	})

	t.Run("truncates paper text for query generation", func(t *testing.T) {
		client := &fakeLLM{handlers: map[string]func(llm.Request) (*llm.Response, error){
			"generate-queries": func(req llm.Request) (*llm.Response, error) {
				assert.Less(t, len(req.Prompt), 7000)
				return &llm.Response{Text: `{"queries": []}`}, nil
			},
		}}

		long := make([]byte, 50000)
		for i := range long {
			long[i] = 'a'
		}
		s := New(client, nil, fastSearchPolicy(), fastSearchConfig(), testMetrics, zerolog.Nop())
		_, err := s.Search(context.Background(), string(long))
		require.NoError(t, err)
	})
}
