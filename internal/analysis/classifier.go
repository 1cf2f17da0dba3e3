package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
	"github.com/paperlens/paper-analysis-service/internal/search"
)

// classifySchema constrains the classification response to the fields the
// merge step consumes.
var classifySchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"papers": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"id":         {Type: llm.TypeString},
					"title":      {Type: llm.TypeString},
					"status":     {Type: llm.TypeString, Enum: []string{"supporting", "conflicting", "related"}},
					"statusText": {Type: llm.TypeString},
					"comparisonDetails": {
						Type: llm.TypeObject,
						Properties: map[string]*llm.Schema{
							"differenceType":     {Type: llm.TypeString},
							"uploadedPaperValue": {Type: llm.TypeString},
							"externalPaperValue": {Type: llm.TypeString},
							"reason":             {Type: llm.TypeString},
						},
					},
				},
			},
		},
	},
}

// classifiedPaper is the per-paper JSON shape of the classification
// response.
type classifiedPaper struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Status     string             `json:"status"`
	StatusText string             `json:"statusText"`
	Comparison *domain.Comparison `json:"comparisonDetails"`
}

// Classifier cross-references found papers against the uploaded paper's
// analysis, labelling each as supporting, conflicting, or related.
type Classifier struct {
	client llm.Client
	logger zerolog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(client llm.Client, logger zerolog.Logger) *Classifier {
	return &Classifier{
		client: client,
		logger: logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify labels the papers and returns them sorted conflicting first,
// then supporting, then related; papers with equal status keep their
// incoming order. The merge preserves each paper's original finding and
// identity fields so the model cannot overwrite them. An empty input
// short-circuits without a model call. On error the caller should keep
// using the unclassified list.
func (c *Classifier) Classify(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper) ([]domain.RelatedPaper, error) {
	if len(papers) == 0 {
		return papers, nil
	}

	resp, err := c.client.Generate(ctx, llm.Request{
		Operation: "classify",
		Prompt:    classifyPrompt(analysis, papers),
		Schema:    classifySchema,
	})
	if err != nil {
		return nil, fmt.Errorf("classifying papers: %w", err)
	}

	var result struct {
		Papers []classifiedPaper `json:"papers"`
	}
	if err := llm.DecodeObject(resp.Text, &result); err != nil {
		return nil, fmt.Errorf("classifying papers: %w", err)
	}

	merged := mergeClassification(papers, result.Papers)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Status.Priority() > merged[j].Status.Priority()
	})

	counts := map[domain.RelationStatus]int{}
	for _, p := range merged {
		counts[p.Status]++
	}
	c.logger.Info().
		Int("conflicting", counts[domain.StatusConflicting]).
		Int("supporting", counts[domain.StatusSupporting]).
		Int("related", counts[domain.StatusRelated]).
		Msg("conflict classification completed")
	return merged, nil
}

// mergeClassification overlays the model's labels onto the original
// papers. Matching is by exact title, then by the id the prompt assigned
// (which was the title for papers without ids), then by normalized title
// to tolerate model paraphrase. Papers the model skipped pass through
// unchanged.
func mergeClassification(originals []domain.RelatedPaper, classified []classifiedPaper) []domain.RelatedPaper {
	merged := make([]domain.RelatedPaper, len(originals))
	for i, original := range originals {
		merged[i] = original
		normalized := search.NormalizeTitle(original.Title)
		for _, cp := range classified {
			if cp.Title != original.Title && cp.ID != original.Title &&
				search.NormalizeTitle(cp.Title) != normalized {
				continue
			}
			if status := domain.RelationStatus(cp.Status); status != "" {
				merged[i].Status = status
			}
			if cp.StatusText != "" {
				merged[i].StatusText = cp.StatusText
			}
			if cp.Comparison != nil {
				merged[i].Comparison = cp.Comparison
			}
			break
		}
	}
	return merged
}
