package search

import (
	"fmt"
	"strings"
)

// queryGenPrompt builds the prompt asking the model for diverse search
// queries covering support, conflict, comparison, review, and limitation
// angles on the paper.
func queryGenPrompt(text string, queryCount int) string {
	var sb strings.Builder
	sb.WriteString(`You are an academic search strategist. Your goal is to generate diverse search queries that will find:
1. Papers that SUPPORT the uploaded paper's approach
2. Papers that CONFLICT with or CHALLENGE the uploaded paper (Crucial)
3. Papers that COMPARE different approaches
4. Papers that REVIEW the field
5. Papers that identify LIMITATIONS

UPLOADED PAPER ANALYSIS:
- Main topic: [AUTO-EXTRACT]
- Domain: [AUTO-EXTRACT]
- Methods used: [AUTO-EXTRACT all methods mentioned]
- Key terms: [AUTO-EXTRACT 10-15 technical terms]
- Problem being solved: [AUTO-EXTRACT]

QUERY GENERATION RULES:
`)
	fmt.Fprintf(&sb, "- Generate %d queries.\n", queryCount)
	sb.WriteString(`- PRIORITIZE finding "Alternative Approaches" and "Critiques".
- Use terms like "vs", "comparison", "limitations of", "critique", "challenges".

OUTPUT FORMAT JSON:
{
  "queries": [
    "query1", "query2", ...
  ]
}

Text: `)
	sb.WriteString(text)
	return sb.String()
}

// groundedSearchPrompt builds the prompt for one search-grounded query.
// The model is asked for a bare JSON array because structured output is
// unavailable when grounding is enabled.
func groundedSearchPrompt(query string) string {
	return fmt.Sprintf(`You are an academic paper search assistant.

Search Google Scholar, arXiv, IEEE Xplore, and PubMed for papers matching: %q

CRITICAL REQUIREMENTS:
1. Find 4-5 REAL academic papers.
2. Prioritize papers with FREE PDF access.
3. Papers must be from 2010-2025 (Allow older papers if they are seminal critiques).
4. Include direct URLs to papers.

For EACH paper return this EXACT structure:
{
  "title": "Full paper title",
  "authors": "Author names (max 100 chars)",
  "year": 2024,
  "journal": "Journal/Conference name",
  "methodology": "Brief method (or 'See paper')",
  "finding": "Main result in 1-2 sentences",
  "url": "Direct link to paper or PDF"
}

Return ONLY a valid JSON array: [{"title":"...", ...}, {...}]`, query)
}
