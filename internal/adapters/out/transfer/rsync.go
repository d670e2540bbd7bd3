package transfer

import (
	"context"

	"github.com/bnema/zerowrap"
)

// Rsync transfers with the rsync binary in archive mode. Destination
// paths are local, rsync is used for its delta efficiency on repeated
// runs, not for remote transport.
type Rsync struct {
	log zerowrap.Logger
}

// NewRsync creates the rsync method.
func NewRsync(log zerowrap.Logger) *Rsync {
	return &Rsync{log: log}
}

func (r *Rsync) LinkCapable() bool { return true }

// Transfer syncs sourcePath's contents into destPath. The trailing
// slash on the source makes rsync copy contents, not the directory
// itself.
func (r *Rsync) Transfer(ctx context.Context, sourcePath, destPath string) error {
	return runCommand(ctx, r.log, "rsync", "-a", "--delete", sourcePath+"/", destPath)
}
