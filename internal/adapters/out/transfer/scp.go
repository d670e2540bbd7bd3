package transfer

import (
	"context"

	"github.com/bnema/zerowrap"
)

// SCP pushes a directory tree to a remote host over ssh. Destination
// paths follow scp's own "[user@]host:path" form; authentication is the
// ssh agent's or key file's business, never this process's.
type SCP struct {
	log zerowrap.Logger
}

// NewSCP creates the scp method.
func NewSCP(log zerowrap.Logger) *SCP {
	return &SCP{log: log}
}

// LinkCapable reports false: the destination lives on another host, so
// cross-tier hardlinks are impossible and the destination runs in
// mirror mode.
func (s *SCP) LinkCapable() bool { return false }

// Transfer copies sourcePath recursively to the remote destination.
// BatchMode keeps a missing key or host prompt from hanging a
// scheduled run.
func (s *SCP) Transfer(ctx context.Context, sourcePath, destPath string) error {
	return runCommand(ctx, s.log, "scp", "-rpq", "-o", "BatchMode=yes", sourcePath, destPath)
}
