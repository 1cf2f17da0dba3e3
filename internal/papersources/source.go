// Package papersources provides clients for searching public paper
// databases, together with the rate-limited HTTP plumbing they share.
package papersources

import (
	"context"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// Source is a searchable paper database. Implementations transform
// source-specific responses into domain.RelatedPaper values so the search
// pipeline can merge results from any source.
type Source interface {
	// Search queries the source with a free-text query. An empty slice
	// and nil error means the query matched nothing.
	Search(ctx context.Context, query string) ([]domain.RelatedPaper, error)

	// Name returns a human-readable name for logging and metrics.
	Name() string
}
