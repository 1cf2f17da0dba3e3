// Package analysis holds the model-driven stages that interpret an
// uploaded paper: structured extraction, conflict classification,
// bibliography extraction, and the chat assistant.
package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
)

// maxAnalyzeChars bounds how much paper text the analyzer sends. The
// opening sections carry the information the extraction needs; sending
// whole books mostly adds cost.
const maxAnalyzeChars = 30000

// analysisSchema constrains the extraction response. All fields are
// required so missing data comes back as empty values rather than absent
// keys.
var analysisSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"title":            {Type: llm.TypeString},
		"summary":          {Type: llm.TypeString},
		"sampleSize":       {Type: llm.TypeString},
		"methodology":      {Type: llm.TypeString},
		"keyFindings":      {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
		"statisticalTests": {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
		"limitations":      {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
	},
	Required: []string{"title", "summary", "sampleSize", "methodology", "keyFindings", "statisticalTests", "limitations"},
}

// Analyzer extracts a structured summary from raw paper text.
type Analyzer struct {
	client llm.Client
	logger zerolog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(client llm.Client, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		logger: logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze runs one extraction call over the (truncated) paper text and
// returns a result with defaults applied. It performs no retries; the
// orchestrator owns the retry policy for this stage.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*domain.AnalysisResult, error) {
	if len(text) > maxAnalyzeChars {
		text = text[:maxAnalyzeChars]
	}

	resp, err := a.client.Generate(ctx, llm.Request{
		Operation: "analyze",
		Prompt:    analyzePrompt(text),
		Schema:    analysisSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing paper: %w", err)
	}

	var result domain.AnalysisResult
	if err := llm.DecodeObject(resp.Text, &result); err != nil {
		return nil, fmt.Errorf("analyzing paper: %w", err)
	}
	result.ApplyDefaults()

	a.logger.Info().
		Str("title", result.Title).
		Int("key_findings", len(result.KeyFindings)).
		Msg("paper analysis completed")
	return &result, nil
}
