package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// analyzePrompt builds the structured-extraction prompt for an uploaded
// paper. The caller truncates text beforehand.
func analyzePrompt(text string) string {
	return fmt.Sprintf(`
Analyze the following research paper text. Extract structured information.

1. Title of the paper (infer from content if not explicit)
2. A brief 2-3 sentence summary of the paper
3. Sample Size / Population: Describe the training/testing events, participants, or datasets (e.g., "A training dataset comprised 2.4 million events...").
4. Methodology: Briefly describe the study design, tools, or simulations used (e.g., "Simulation-based study using Graph Neural Networks (GNNs)...").
5. Key Findings: Extract 4-6 main results as bullet points.
6. Statistical Tests Used: List any tests mentioned.
7. Limitations: Extract 3-5 concerns or limitations.

Paper Text: %s

Return valid JSON matching this exact structure:
{
  "title": "string",
  "summary": "string",
  "sampleSize": "string",
  "methodology": "string",
  "keyFindings": ["string1", "string2", ...],
  "statisticalTests": ["string1", "string2", ...],
  "limitations": ["string1", "string2", ...]
}
`, text)
}

// simplifiedPaper is the reduced view of a found paper sent to the
// classifier. Full papers make the prompt large enough that responses get
// truncated mid-array.
type simplifiedPaper struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Finding string `json:"finding"`
	Year    int    `json:"year"`
}

// classifyPrompt builds the cross-referencing prompt comparing the found
// papers against the uploaded one.
func classifyPrompt(analysis *domain.AnalysisResult, papers []domain.RelatedPaper) string {
	simplified := make([]simplifiedPaper, len(papers))
	for i, p := range papers {
		id := p.ID
		if id == "" {
			id = p.Title
		}
		simplified[i] = simplifiedPaper{
			ID:      id,
			Title:   p.Title,
			Finding: p.Finding,
			Year:    p.Year,
		}
	}
	encoded, _ := json.Marshal(simplified)

	return fmt.Sprintf(`
UPLOADED PAPER:
Title: %s
Methodology: %s
Findings: %s

FOUND PAPERS:
%s

TASK: Compare FOUND PAPERS against UPLOADED PAPER.

RULES FOR CLASSIFICATION:
1. SUPPORTING: Validates the approach, uses similar methods with positive results.

2. CONFLICTING (Be aggressive in finding these):
   - Direct contradiction of results.
   - Highlights limitations, bias, or failures of the uploaded paper's specific method (e.g., "%s").
   - Proposes an ALTERNATIVE method explicitly claimed to be SUPERIOR/Faster/More Accurate.
   - Raises ethical or practical concerns about this specific approach.
   - If a paper proposes a "Better" way, mark it CONFLICTING.

3. RELATED: Contextual literature, reviews, or different problems.

STRICT RULES FOR 'comparisonDetails.reason':
- Write EXACTLY ONE sentence (15-25 words maximum)
- DO NOT write multiple sentences
- DO NOT repeat the same idea in different words
- DO NOT write both a headline and an explanation
- Be specific with numbers and metrics in a single clear statement
- Example of CORRECT format: "This paper achieved 42%% energy resolution with 5M events vs your 48.6%% with 2.4M events, suggesting larger datasets improve performance."

Return the exact same papers array but with updated 'status', 'statusText', and 'comparisonDetails'.

Return JSON: { "papers": [...] }
`,
		analysis.Title,
		analysis.Methodology,
		strings.Join(analysis.KeyFindings, "; "),
		encoded,
		analysis.Methodology,
	)
}

// referencesPrompt builds the bibliography-extraction prompt over the
// tail of the document, where reference sections live.
func referencesPrompt(tail string) string {
	return fmt.Sprintf(`
Extract the top 15 most important references (bibliography) from the text below.

Focus on the "REFERENCES" or "BIBLIOGRAPHY" section if available.
Extract the REAL titles and authors. Do not generate placeholder data.

Text Segment (End of file): %s

Return JSON:
{
    "references": [
        { "title": "Paper Title", "author": "First Author et al.", "year": "2023" }
    ]
}
`, tail)
}

// chatPrompt builds the assistant prompt from the analysis, the top
// related papers, and the recent conversation turns.
func chatPrompt(analysis *domain.AnalysisResult, papers []domain.RelatedPaper, history []domain.ChatMessage, question string) string {
	var paperLines strings.Builder
	for _, p := range papers {
		reason := "N/A"
		if p.Comparison != nil && p.Comparison.Reason != "" {
			reason = p.Comparison.Reason
		}
		fmt.Fprintf(&paperLines, "\n- %s (%d)\n  Status: %s\n  Finding: %s\n  Comparison: %s\n", p.Title, p.Year, p.StatusText, p.Finding, reason)
	}

	var historyLines strings.Builder
	for _, m := range history {
		fmt.Fprintf(&historyLines, "%s: %s\n", m.Role, m.Content)
	}

	context := fmt.Sprintf(`
UPLOADED PAPER CONTEXT:
Title: %s
Summary: %s
Methodology: %s
Sample Size: %s
Key Findings: %s
Statistical Tests: %s
Limitations: %s

RELATED PAPERS FOUND:
%s
CONVERSATION HISTORY:
%s
USER QUESTION: %s
`,
		analysis.Title,
		analysis.Summary,
		analysis.Methodology,
		analysis.SampleSize,
		strings.Join(analysis.KeyFindings, "; "),
		strings.Join(analysis.StatisticalTests, ", "),
		strings.Join(analysis.Limitations, "; "),
		paperLines.String(),
		historyLines.String(),
		question,
	)

	return fmt.Sprintf(`You are a helpful research assistant helping a researcher understand their paper and related literature.

Context about the uploaded paper and related research:
%s

Instructions:
1. Answer the user's question based on the paper context provided
2. Reference specific findings, methods, or related papers when relevant
3. If comparing papers, cite specific metrics or differences
4. If the question cannot be answered from the context, politely say so
5. Keep responses concise (2-4 paragraphs max) but informative
6. Use bullet points for lists
7. Be conversational and helpful

Respond to the user's question naturally and helpfully.`, context)
}
