package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bnema/zerowrap"
)

// Local copies a directory tree on the local filesystem. It preserves
// file modes and symlinks and needs no external binary.
type Local struct {
	log zerowrap.Logger
}

// NewLocal creates the local copy method.
func NewLocal(log zerowrap.Logger) *Local {
	return &Local{log: log}
}

// LinkCapable reports true: destination paths are local, so same-run
// snapshots can be shared across tiers by hardlink.
func (l *Local) LinkCapable() bool { return true }

// Transfer copies sourcePath's contents into destPath, which must
// already exist. Copying stops at the first error or when the context
// is cancelled.
func (l *Local) Transfer(ctx context.Context, sourcePath, destPath string) error {
	l.log.Debug().
		Str(zerowrap.FieldAdapter, "transfer.local").
		Str("source", sourcePath).
		Str("dest", destPath).
		Msg("copying directory tree")

	return filepath.WalkDir(sourcePath, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(destPath, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case d.Type().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Sockets, devices and fifos are not backup content.
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
