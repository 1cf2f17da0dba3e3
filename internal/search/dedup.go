package search

import (
	"strings"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// normalizedTitleLen caps the normalized key so trivially different
// suffixes (version markers, subtitle punctuation) still collide.
const normalizedTitleLen = 60

// NormalizeTitle reduces a title to a comparison key: lowercase, letters
// and digits only, truncated.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > normalizedTitleLen {
		key = key[:normalizedTitleLen]
	}
	return key
}

// Deduplicate collapses papers that share a normalized title. The output
// keeps the position of the first occurrence but the content of the last,
// so later sources can refresh fields like URLs without reordering.
func Deduplicate(papers []domain.RelatedPaper) []domain.RelatedPaper {
	out := make([]domain.RelatedPaper, 0, len(papers))
	index := make(map[string]int, len(papers))

	for _, p := range papers {
		key := NormalizeTitle(p.Title)
		if at, seen := index[key]; seen {
			out[at] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}
