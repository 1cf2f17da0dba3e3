package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/paperlens/paper-analysis-service/internal/domain"
	"github.com/paperlens/paper-analysis-service/internal/llm"
	"github.com/paperlens/paper-analysis-service/internal/retry"
)

// referencesTailChars is how much of the end of the document the
// extractor reads. Bibliographies sit at the back.
const referencesTailChars = 30000

// referencesSchema constrains the bibliography-extraction response.
var referencesSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"references": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"title":  {Type: llm.TypeString},
					"author": {Type: llm.TypeString},
					"year":   {Type: llm.TypeString},
				},
			},
		},
	},
}

// ReferenceExtractor pulls bibliography entries out of a paper's text.
type ReferenceExtractor struct {
	client llm.Client
	policy retry.Policy
	logger zerolog.Logger
}

// NewReferenceExtractor creates a ReferenceExtractor.
func NewReferenceExtractor(client llm.Client, policy retry.Policy, logger zerolog.Logger) *ReferenceExtractor {
	return &ReferenceExtractor{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "references").Logger(),
	}
}

// Extract returns the most important references found near the end of the
// document. The call retries under the stage policy.
func (r *ReferenceExtractor) Extract(ctx context.Context, text string) ([]domain.Reference, error) {
	tail := text
	if len(tail) > referencesTailChars {
		tail = tail[len(tail)-referencesTailChars:]
	}

	req := llm.Request{
		Operation: "extract-references",
		Prompt:    referencesPrompt(tail),
		Schema:    referencesSchema,
	}

	refs, err := retry.Do(ctx, r.policy, func(ctx context.Context) ([]domain.Reference, error) {
		resp, err := r.client.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		var out struct {
			References []domain.Reference `json:"references"`
		}
		if err := llm.DecodeObject(resp.Text, &out); err != nil {
			return nil, err
		}
		return out.References, nil
	})
	if err != nil {
		return nil, fmt.Errorf("extracting references: %w", err)
	}
	if refs == nil {
		refs = []domain.Reference{}
	}

	r.logger.Info().Int("references", len(refs)).Msg("reference extraction completed")
	return refs, nil
}
