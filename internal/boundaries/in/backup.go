package in

import (
	"context"
	"time"

	"github.com/bnema/rotavault/internal/domain"
)

// BackupService defines the backup orchestration use cases.
type BackupService interface {
	// Run evaluates due-ness for every destination against the
	// persisted last run, rotates the due ones and persists the new
	// last-run marker when everything succeeded.
	Run(ctx context.Context, now time.Time) (domain.RunSummary, error)

	// RunDestination runs a single destination by name.
	RunDestination(ctx context.Context, name string, now time.Time) (domain.RunSummary, error)

	// Prune applies retention to every destination without backing up.
	Prune(ctx context.Context) (domain.RunSummary, error)

	// ListSnapshots returns all snapshots of one destination, newest
	// first within each tier.
	ListSnapshots(ctx context.Context, destination string) ([]domain.Snapshot, error)
}
