package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

func TestNormalizeTitle(t *testing.T) {
	t.Run("lowercases and strips punctuation", func(t *testing.T) {
		assert.Equal(t, "attentionisallyouneed", NormalizeTitle("Attention Is All You Need!"))
	})

	t.Run("identical up to punctuation collide", func(t *testing.T) {
		a := NormalizeTitle("Deep Learning: A Survey")
		b := NormalizeTitle("deep learning — a survey")
		assert.Equal(t, a, b)
	})

	t.Run("truncates long titles", func(t *testing.T) {
		long := "An Extremely Long Title That Just Keeps Going And Going And Going Beyond Sixty Characters"
		assert.Len(t, NormalizeTitle(long), normalizedTitleLen)
	})
}

func TestDeduplicate(t *testing.T) {
	t.Run("keeps first position with last content", func(t *testing.T) {
		papers := []domain.RelatedPaper{
			{Title: "Paper Alpha", Journal: "Conf A"},
			{Title: "Paper Beta", Journal: "Conf B"},
			{Title: "paper alpha!", Journal: "arXiv Preprint", URL: "http://arxiv.org/abs/1"},
		}
		out := Deduplicate(papers)
		require.Len(t, out, 2)
		assert.Equal(t, "paper alpha!", out[0].Title)
		assert.Equal(t, "arXiv Preprint", out[0].Journal)
		assert.Equal(t, "http://arxiv.org/abs/1", out[0].URL)
		assert.Equal(t, "Paper Beta", out[1].Title)
	})

	t.Run("handles empty input", func(t *testing.T) {
		assert.Empty(t, Deduplicate(nil))
	})
}
