package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
)

const (
	// chatMaxPapers is how many related papers the assistant sees.
	chatMaxPapers = 5

	// chatMaxHistory is how many recent conversation turns are kept in
	// the prompt.
	chatMaxHistory = 6
)

// Assistant answers questions about an analyzed paper and its related
// literature.
type Assistant struct {
	client llm.Client
	logger zerolog.Logger
}

// NewAssistant creates an Assistant.
func NewAssistant(client llm.Client, logger zerolog.Logger) *Assistant {
	return &Assistant{
		client: client,
		logger: logger.With().Str("component", "chat").Logger(),
	}
}

// Reply answers one question grounded in the session's analysis, its top
// related papers, and the recent history. Requires a completed analysis.
func (a *Assistant) Reply(ctx context.Context, analysis *domain.AnalysisResult, papers []domain.RelatedPaper, history []domain.ChatMessage, question string) (string, error) {
	if analysis == nil {
		return "", domain.ErrNoAnalysis
	}
	if question == "" {
		return "", domain.NewValidationError("message", "must not be empty")
	}

	if len(papers) > chatMaxPapers {
		papers = papers[:chatMaxPapers]
	}
	if len(history) > chatMaxHistory {
		history = history[len(history)-chatMaxHistory:]
	}

	resp, err := a.client.Generate(ctx, llm.Request{
		Operation: "chat",
		Prompt:    chatPrompt(analysis, papers, history, question),
	})
	if err != nil {
		return "", fmt.Errorf("generating chat reply: %w", err)
	}

	a.logger.Debug().Int("reply_chars", len(resp.Text)).Msg("chat reply generated")
	return resp.Text, nil
}
