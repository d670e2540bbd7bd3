package out

import (
	"context"

	"github.com/bnema/rotavault/internal/domain"
)

// SnapshotStore defines persistence for snapshot directories under a
// destination's storage root. Layout: one directory per tier name,
// snapshot directories named by domain.TimestampLayout beneath it.
type SnapshotStore interface {
	// Materialize runs exactly one transfer into a fresh snapshot
	// directory for the tier. The snapshot becomes visible under its
	// final name only after the transfer completed.
	Materialize(ctx context.Context, t Transferer, sourcePath, destRoot, tier, timestamp string) (domain.Snapshot, error)

	// Link creates a same-run linked snapshot in tier, hardlink-cloned
	// from a materialized snapshot. Indistinguishable from a real
	// snapshot for listing and pruning except for its Kind.
	Link(ctx context.Context, destRoot string, from domain.Snapshot, tier string) (domain.Snapshot, error)

	// List returns the tier's snapshots ordered newest first. A tier
	// directory that does not exist yet lists as empty.
	List(ctx context.Context, destRoot, tier string) ([]domain.Snapshot, error)

	// Dependents returns the linked snapshots that reference a
	// materialized snapshot, across all tiers of the root.
	Dependents(ctx context.Context, destRoot string, snap domain.Snapshot) ([]domain.Snapshot, error)

	// Delete removes a snapshot. Deleting a materialized snapshot that
	// still has linked dependents fails with domain.ErrSnapshotInUse.
	Delete(ctx context.Context, destRoot string, snap domain.Snapshot) error

	// Lock acquires the advisory per-root lock held across
	// materialize, link and prune. It fails with domain.ErrRunInProgress
	// when another process holds it. The returned func releases it.
	Lock(destRoot string) (func(), error)
}
