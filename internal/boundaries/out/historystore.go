package out

import (
	"context"

	"github.com/bnema/rotavault/internal/domain"
)

// HistoryStore records run summaries for later inspection.
type HistoryStore interface {
	Record(ctx context.Context, summary domain.RunSummary) error
	Recent(ctx context.Context, limit int) ([]domain.RunSummary, error)
	Close() error
}
