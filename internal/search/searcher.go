// Package search implements the literature discovery stage: the model
// proposes search queries, each query runs as a search-grounded
// generation, public sources provide a fallback, and the merged results
// are deduplicated by normalized title.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
	"github.com/paperlens/paper-analysis-service/internal/observability"
	"github.com/paperlens/paper-analysis-service/internal/papersources"
	"github.com/paperlens/paper-analysis-service/internal/retry"
)

const (
	// minTitleLen filters out results whose titles are too short to be
	// real papers.
	minTitleLen = 10

	// minYear drops results older than the survey window. Seminal older
	// papers still arrive through the fallback sources.
	minYear = 2010

	// sourceGrounded labels search-grounded generation in metrics.
	sourceGrounded = "gemini_grounded"
)

// Config tunes the search stage.
type Config struct {
	// QueryCount is how many queries the model is asked to generate.
	QueryCount int

	// ActiveQueries is how many of the generated queries actually run.
	// Running all of them burns through API quota for little gain.
	ActiveQueries int

	// FallbackQueries is how many of the active queries are also sent to
	// the fallback sources.
	FallbackQueries int

	// InterQueryPause is the wait between consecutive grounded queries,
	// spreading out the request burst.
	InterQueryPause time.Duration

	// ContextChars is how much of the paper text the query generator
	// sees.
	ContextChars int
}

// DefaultConfig returns the search stage defaults.
func DefaultConfig() Config {
	return Config{
		QueryCount:      6,
		ActiveQueries:   3,
		FallbackQueries: 2,
		InterQueryPause: 1500 * time.Millisecond,
		ContextChars:    5000,
	}
}

// applyDefaults fills unset fields from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.QueryCount <= 0 {
		c.QueryCount = def.QueryCount
	}
	if c.ActiveQueries <= 0 {
		c.ActiveQueries = def.ActiveQueries
	}
	if c.FallbackQueries <= 0 {
		c.FallbackQueries = def.FallbackQueries
	}
	if c.InterQueryPause <= 0 {
		c.InterQueryPause = def.InterQueryPause
	}
	if c.ContextChars <= 0 {
		c.ContextChars = def.ContextChars
	}
}

// Searcher discovers papers related to an uploaded document.
type Searcher struct {
	client  llm.Client
	sources []papersources.Source
	policy  retry.Policy
	config  Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// New creates a Searcher. sources may be empty, in which case only the
// grounded queries contribute results.
func New(client llm.Client, sources []papersources.Source, policy retry.Policy, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Searcher {
	cfg.applyDefaults()
	return &Searcher{
		client:  client,
		sources: sources,
		policy:  policy,
		config:  cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "searcher").Logger(),
	}
}

// Search runs the full discovery flow for the given paper text. Query
// generation failures abort the search; individual query failures are
// logged and skipped. The returned papers are deduplicated and marked as
// pending classification.
func (s *Searcher) Search(ctx context.Context, text string) ([]domain.RelatedPaper, error) {
	queries, err := s.generateQueries(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generating search queries: %w", err)
	}
	if len(queries) == 0 {
		s.logger.Warn().Msg("model returned no search queries")
		return []domain.RelatedPaper{}, nil
	}
	if len(queries) > s.config.ActiveQueries {
		queries = queries[:s.config.ActiveQueries]
	}
	s.logger.Info().Strs("queries", queries).Msg("running literature search")

	collected := s.runGroundedQueries(ctx, queries)

	fallbackQueries := queries
	if len(fallbackQueries) > s.config.FallbackQueries {
		fallbackQueries = fallbackQueries[:s.config.FallbackQueries]
	}
	collected = append(collected, s.runFallbackSources(ctx, fallbackQueries)...)

	kept := collected[:0]
	for _, p := range collected {
		if len(p.Title) > minTitleLen {
			kept = append(kept, p)
		}
	}

	unique := Deduplicate(kept)
	if dropped := len(kept) - len(unique); dropped > 0 {
		s.metrics.RecordPapersDuplicate(dropped)
	}
	for i := range unique {
		unique[i].Status = domain.StatusRelated
		unique[i].StatusText = "Pending analysis"
		unique[i].Comparison = &domain.Comparison{Reason: "Analyzing..."}
	}

	s.logger.Info().
		Int("collected", len(collected)).
		Int("unique", len(unique)).
		Msg("literature search finished")
	return unique, nil
}

// stagePolicy returns the retry policy with retry accounting attached for
// the given operation.
func (s *Searcher) stagePolicy(operation string) retry.Policy {
	p := s.policy
	p.OnRetry = func(error) { s.metrics.RecordLLMRetry(operation) }
	return p
}

// generateQueries asks the model for search queries and keeps retrying
// under the stage policy.
func (s *Searcher) generateQueries(ctx context.Context, text string) ([]string, error) {
	excerpt := text
	if len(excerpt) > s.config.ContextChars {
		excerpt = excerpt[:s.config.ContextChars]
	}

	req := llm.Request{
		Operation: "generate-queries",
		Prompt:    queryGenPrompt(excerpt, s.config.QueryCount),
		Schema: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"queries": {
					Type:  llm.TypeArray,
					Items: &llm.Schema{Type: llm.TypeString},
				},
			},
		},
	}

	return retry.Do(ctx, s.stagePolicy("generate-queries"), func(ctx context.Context) ([]string, error) {
		resp, err := s.client.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		var out struct {
			Queries []string `json:"queries"`
		}
		if err := llm.DecodeObject(resp.Text, &out); err != nil {
			return nil, err
		}
		return out.Queries, nil
	})
}

// runGroundedQueries executes the queries sequentially, pausing between
// requests once the first one has produced results. A failed query does
// not stop the remaining ones.
func (s *Searcher) runGroundedQueries(ctx context.Context, queries []string) []domain.RelatedPaper {
	var collected []domain.RelatedPaper
	for _, query := range queries {
		if len(collected) > 0 {
			select {
			case <-ctx.Done():
				return collected
			case <-time.After(s.config.InterQueryPause):
			}
		}

		started := time.Now()
		s.metrics.RecordSearchStarted(sourceGrounded)
		papers, err := retry.Do(ctx, s.stagePolicy("grounded-search"), func(ctx context.Context) ([]domain.RelatedPaper, error) {
			return s.groundedQuery(ctx, query)
		})
		if err != nil {
			s.metrics.RecordSearchFailed(sourceGrounded, time.Since(started).Seconds())
			if retry.IsRateLimitError(err) {
				s.metrics.RecordSourceRateLimited(sourceGrounded)
			}
			s.logger.Warn().Err(err).Str("query", query).Msg("grounded search query failed")
			continue
		}
		s.metrics.RecordSearchCompleted(sourceGrounded, len(papers), time.Since(started).Seconds())
		collected = append(collected, papers...)
	}
	return collected
}

// groundedQuery runs one search-grounded generation and parses the paper
// list out of the response text. A response with no array in it yields an
// empty result rather than an error.
func (s *Searcher) groundedQuery(ctx context.Context, query string) ([]domain.RelatedPaper, error) {
	resp, err := s.client.Generate(ctx, llm.Request{
		Operation: "grounded-search",
		Prompt:    groundedSearchPrompt(query),
		UseSearch: true,
	})
	if err != nil {
		return nil, err
	}

	arr, ok := llm.ExtractJSONArray(resp.Text)
	if !ok {
		return []domain.RelatedPaper{}, nil
	}

	var raw []wirePaper
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	papers := make([]domain.RelatedPaper, 0, len(raw))
	for _, p := range raw {
		if len(p.Title) <= minTitleLen || int(p.Year) < minYear || p.Authors == "" {
			continue
		}
		papers = append(papers, domain.RelatedPaper{
			Title:       p.Title,
			Authors:     p.Authors,
			Year:        int(p.Year),
			Journal:     p.Journal,
			Methodology: p.Methodology,
			Finding:     p.Finding,
			URL:         p.URL,
		})
	}
	return papers, nil
}

// runFallbackSources fans the leading queries out to every configured
// source concurrently. Source failures are logged and contribute nothing.
func (s *Searcher) runFallbackSources(ctx context.Context, queries []string) []domain.RelatedPaper {
	if len(s.sources) == 0 || len(queries) == 0 {
		return nil
	}

	results := make([][]domain.RelatedPaper, len(queries)*len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for qi, query := range queries {
		query := query
		for si, source := range s.sources {
			source := source
			slot := qi*len(s.sources) + si
			g.Go(func() error {
				started := time.Now()
				s.metrics.RecordSearchStarted(source.Name())
				papers, err := source.Search(gctx, query)
				if err != nil {
					s.metrics.RecordSearchFailed(source.Name(), time.Since(started).Seconds())
					if retry.IsRateLimitError(err) {
						s.metrics.RecordSourceRateLimited(source.Name())
					}
					s.logger.Warn().
						Err(err).
						Str("source", source.Name()).
						Str("query", query).
						Msg("fallback source search failed")
					return nil
				}
				s.metrics.RecordSearchCompleted(source.Name(), len(papers), time.Since(started).Seconds())
				results[slot] = papers
				return nil
			})
		}
	}
	_ = g.Wait()

	var merged []domain.RelatedPaper
	for _, papers := range results {
		merged = append(merged, papers...)
	}
	return merged
}

// wirePaper is the JSON shape grounded queries return. Year tolerates
// both numeric and quoted values because grounded output is free-form.
type wirePaper struct {
	Title       string   `json:"title"`
	Authors     string   `json:"authors"`
	Year        flexYear `json:"year"`
	Journal     string   `json:"journal"`
	Methodology string   `json:"methodology"`
	Finding     string   `json:"finding"`
	URL         string   `json:"url"`
}

// flexYear unmarshals from a JSON number or a numeric string.
type flexYear int

func (y *flexYear) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*y = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*y = 0
		return nil
	}
	*y = flexYear(n)
	return nil
}
