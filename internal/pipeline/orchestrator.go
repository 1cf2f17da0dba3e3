package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/observability"
	"github.com/paperlens/paper-analysis-service/internal/retry"
)

// defaultSearchStagger is how long the search task waits after the
// analysis task starts, so the two LLM calls do not land at once.
const defaultSearchStagger = 2000 * time.Millisecond

// Analyzer extracts structured findings from document text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.AnalysisResult, error)
}

// Searcher finds related papers for document text.
type Searcher interface {
	Search(ctx context.Context, text string) ([]domain.RelatedPaper, error)
}

// Classifier labels related papers against an analysis result.
type Classifier interface {
	Classify(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper) ([]domain.RelatedPaper, error)
}

// Orchestrator drives one analysis run: analysis and literature search in
// parallel, then conflict classification over whatever the search found.
type Orchestrator struct {
	analyzer   Analyzer
	searcher   Searcher
	classifier Classifier
	policy     retry.Policy
	stagger    time.Duration
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewOrchestrator creates an orchestrator with the default retry policy
// and search stagger.
func NewOrchestrator(analyzer Analyzer, searcher Searcher, classifier Classifier, metrics *observability.Metrics, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		analyzer:   analyzer,
		searcher:   searcher,
		classifier: classifier,
		policy:     retry.Default(),
		stagger:    defaultSearchStagger,
		metrics:    metrics,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
}

// WithStagger overrides the search stagger delay. Intended for tests.
func (o *Orchestrator) WithStagger(d time.Duration) *Orchestrator {
	o.stagger = d
	return o
}

// WithPolicy overrides the retry policy applied to the analysis and
// classification stages.
func (o *Orchestrator) WithPolicy(p retry.Policy) *Orchestrator {
	o.policy = p
	return o
}

// Run executes a full analysis run for the given session generation. The
// analysis and search tasks fail independently: a search failure never
// discards a finished analysis, and an analysis failure surfaces an error
// only when the session has no analysis to show. Cancellation of ctx
// marks the run superseded.
func (o *Orchestrator) Run(ctx context.Context, session *Session, gen int, text string) {
	start := time.Now()
	o.metrics.RecordRunStarted()

	logger := observability.WithSessionContext(o.logger, session.ID(), gen)
	logger.Info().Int("text_chars", len(text)).Msg("analysis run started")

	var (
		analysis *domain.AnalysisResult
		aerr     error
		papers   []domain.RelatedPaper
		serr     error
	)

	// The group context is deliberately not shared between the two
	// tasks: one failing must not cancel the other.
	g := new(errgroup.Group)

	g.Go(func() error {
		stageStart := time.Now()
		analysis, aerr = retry.Do(ctx, o.stagePolicy("analyze"), func(ctx context.Context) (*domain.AnalysisResult, error) {
			return o.analyzer.Analyze(ctx, text)
		})
		if aerr != nil {
			o.metrics.RecordStageFailed("analyze", time.Since(stageStart).Seconds())
			logger.Error().Err(aerr).Msg("analysis stage failed")
			return nil
		}
		o.metrics.RecordStage("analyze", time.Since(stageStart).Seconds())
		session.setAnalysis(gen, analysis)
		return nil
	})

	g.Go(func() error {
		select {
		case <-time.After(o.stagger):
		case <-ctx.Done():
			serr = ctx.Err()
			return nil
		}
		session.setStatus(gen, StatusSearching)

		stageStart := time.Now()
		papers, serr = o.searcher.Search(ctx, text)
		if serr != nil {
			o.metrics.RecordStageFailed("search", time.Since(stageStart).Seconds())
			logger.Error().Err(serr).Msg("search stage failed")
			return nil
		}
		o.metrics.RecordStage("search", time.Since(stageStart).Seconds())
		return nil
	})

	_ = g.Wait()

	if ctx.Err() != nil {
		o.metrics.RecordRunSuperseded()
		logger.Info().Msg("analysis run superseded")
		return
	}

	switch {
	case aerr != nil:
		// Search results are still published; classification is skipped
		// because it needs the analysis as its anchor.
		if serr == nil {
			session.setPapers(gen, papers)
		}
		// A previous generation's analysis cannot exist here because
		// beginRun cleared it, so any analysis on the session is ours.
		if !session.hasAnalysis() {
			session.setError(gen, "Failed to analyze the paper. Please try again.")
		}
		o.metrics.RecordRunFailed(time.Since(start).Seconds())

	case serr != nil:
		// Analysis succeeded but search did not. Publish the analysis
		// alone; the papers list simply stays empty.
		o.metrics.RecordRunCompleted(time.Since(start).Seconds())

	case len(papers) == 0:
		session.setPapers(gen, []domain.RelatedPaper{})
		session.setStatus(gen, StatusNoResults)
		o.metrics.RecordRunCompleted(time.Since(start).Seconds())

	default:
		session.setStatus(gen, StatusClassifying)
		session.setPapers(gen, o.classifyPapers(ctx, logger, analysis, papers))
		o.metrics.RecordPapersFound(len(papers))
		o.metrics.RecordRunCompleted(time.Since(start).Seconds())
	}

	session.finishRun(gen)
	logger.Info().
		Dur("duration", time.Since(start)).
		Int("papers", len(papers)).
		Msg("analysis run finished")
}

// stagePolicy returns the retry policy with retry accounting attached for
// the given operation.
func (o *Orchestrator) stagePolicy(operation string) retry.Policy {
	p := o.policy
	p.OnRetry = func(error) { o.metrics.RecordLLMRetry(operation) }
	return p
}

// classifyPapers runs conflict classification with retries. When
// classification keeps failing the unclassified list is returned as-is so
// the user still sees what the search found.
func (o *Orchestrator) classifyPapers(ctx context.Context, logger zerolog.Logger, analysis *domain.AnalysisResult, papers []domain.RelatedPaper) []domain.RelatedPaper {
	stageStart := time.Now()
	classified, err := retry.Do(ctx, o.stagePolicy("classify"), func(ctx context.Context) ([]domain.RelatedPaper, error) {
		return o.classifier.Classify(ctx, analysis, papers)
	})
	if err != nil {
		o.metrics.RecordStageFailed("classify", time.Since(stageStart).Seconds())
		logger.Warn().Err(err).Msg("classification failed, returning unclassified papers")
		return papers
	}
	o.metrics.RecordStage("classify", time.Since(stageStart).Seconds())
	return classified
}
