package out

import "context"

// Transferer performs the actual data transfer for one snapshot. The
// core treats it as opaque and synchronous: a call either completes the
// transfer into destPath or fails the destination's run.
type Transferer interface {
	Transfer(ctx context.Context, sourcePath, destPath string) error

	// LinkCapable reports whether destination paths written by this
	// method live on the local filesystem, so same-run snapshots can be
	// shared across tiers by hardlink instead of a second transfer.
	LinkCapable() bool
}
