// Package filesystem implements snapshot persistence on a local
// filesystem tree: one directory per tier under the destination's
// storage root, one timestamped directory per snapshot.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/gofrs/flock"

	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
)

const (
	metaFileName = ".rotavault.json"
	lockFileName = ".rotavault.lock"
)

// snapshotMeta is the sidecar record written inside every snapshot
// directory. It carries the facts listing cannot recover from the
// directory name alone.
type snapshotMeta struct {
	Tier       string `json:"tier"`
	Timestamp  string `json:"timestamp"`
	Kind       string `json:"kind"`
	LinkedFrom string `json:"linked_from,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// SnapshotStore implements snapshot persistence for any number of
// destination roots. It is stateless between calls; all state lives in
// the directory tree.
type SnapshotStore struct {
	log zerowrap.Logger
}

// NewSnapshotStore creates a filesystem snapshot store.
func NewSnapshotStore(log zerowrap.Logger) *SnapshotStore {
	return &SnapshotStore{log: log}
}

// Materialize runs the transfer into a temporary directory next to the
// final name and renames it into place afterwards, so a snapshot is
// visible under its final name only once its content is complete. A
// leftover temp directory from a crashed run is discarded first.
func (s *SnapshotStore) Materialize(ctx context.Context, t out.Transferer, sourcePath, destRoot, tier, timestamp string) (domain.Snapshot, error) {
	root := expandTilde(destRoot)
	tierDir := filepath.Join(root, tier)
	if err := os.MkdirAll(tierDir, 0750); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create tier directory: %w", err)
	}

	finalPath := filepath.Join(tierDir, timestamp)
	tmpPath := finalPath + ".tmp"
	if err := os.RemoveAll(tmpPath); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to clear stale temp directory: %w", err)
	}
	if err := os.MkdirAll(tmpPath, 0750); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create temp directory: %w", err)
	}

	if err := t.Transfer(ctx, sourcePath, tmpPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	meta := snapshotMeta{
		Tier:      tier,
		Timestamp: timestamp,
		Kind:      string(domain.SnapshotMaterialized),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeMeta(tmpPath, meta); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, err
	}

	// A rerun inside the same minute replaces the snapshot.
	if err := os.RemoveAll(finalPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("failed to replace existing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	return domain.Snapshot{
		Tier:      tier,
		Timestamp: timestamp,
		Path:      finalPath,
		Kind:      domain.SnapshotMaterialized,
	}, nil
}

// Link clones a materialized snapshot into another tier by hardlinking
// every file, then writes the clone's own sidecar naming its origin.
// The clone shares all data blocks with the origin and costs only
// directory entries.
func (s *SnapshotStore) Link(_ context.Context, destRoot string, from domain.Snapshot, tier string) (domain.Snapshot, error) {
	root := expandTilde(destRoot)
	tierDir := filepath.Join(root, tier)
	if err := os.MkdirAll(tierDir, 0750); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create tier directory: %w", err)
	}

	finalPath := filepath.Join(tierDir, from.Timestamp)
	tmpPath := finalPath + ".tmp"
	if err := os.RemoveAll(tmpPath); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to clear stale temp directory: %w", err)
	}

	if err := cloneTree(from.Path, tmpPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("failed to link snapshot: %w", err)
	}

	meta := snapshotMeta{
		Tier:       tier,
		Timestamp:  from.Timestamp,
		Kind:       string(domain.SnapshotLinked),
		LinkedFrom: from.Ref(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeMeta(tmpPath, meta); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, err
	}

	if err := os.RemoveAll(finalPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("failed to replace existing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.RemoveAll(tmpPath)
		return domain.Snapshot{}, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	return domain.Snapshot{
		Tier:       tier,
		Timestamp:  from.Timestamp,
		Path:       finalPath,
		Kind:       domain.SnapshotLinked,
		LinkedFrom: from.Ref(),
	}, nil
}

// List returns the tier's snapshots newest first. Directory entries
// that do not parse as snapshot names, including in-flight temp
// directories, are ignored.
func (s *SnapshotStore) List(_ context.Context, destRoot, tier string) ([]domain.Snapshot, error) {
	root := expandTilde(destRoot)
	tierDir := filepath.Join(root, tier)

	entries, err := os.ReadDir(tierDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Snapshot{}, nil
		}
		return nil, err
	}

	snaps := make([]domain.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if _, err := time.Parse(domain.TimestampLayout, entry.Name()); err != nil {
			continue
		}

		snap := domain.Snapshot{
			Tier:      tier,
			Timestamp: entry.Name(),
			Path:      filepath.Join(tierDir, entry.Name()),
			Kind:      domain.SnapshotMaterialized,
		}
		if meta, err := readMeta(snap.Path); err == nil {
			snap.Kind = domain.SnapshotKind(meta.Kind)
			snap.LinkedFrom = meta.LinkedFrom
		}
		snaps = append(snaps, snap)
	}

	// Names follow a lexically sortable layout, newest last on disk.
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp > snaps[j].Timestamp
	})
	return snaps, nil
}

// Dependents returns the linked snapshots across all tiers of the root
// that reference the given materialized snapshot.
func (s *SnapshotStore) Dependents(ctx context.Context, destRoot string, snap domain.Snapshot) ([]domain.Snapshot, error) {
	root := expandTilde(destRoot)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var deps []domain.Snapshot
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == snap.Tier {
			continue
		}
		tierSnaps, err := s.List(ctx, destRoot, entry.Name())
		if err != nil {
			return nil, err
		}
		for _, candidate := range tierSnaps {
			if candidate.Kind == domain.SnapshotLinked && candidate.LinkedFrom == snap.Ref() {
				deps = append(deps, candidate)
			}
		}
	}
	return deps, nil
}

// Delete removes a snapshot directory. A materialized snapshot that
// still has linked dependents is refused with domain.ErrSnapshotInUse.
func (s *SnapshotStore) Delete(ctx context.Context, destRoot string, snap domain.Snapshot) error {
	if snap.Kind == domain.SnapshotMaterialized {
		deps, err := s.Dependents(ctx, destRoot, snap)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return fmt.Errorf("%w: %s", domain.ErrSnapshotInUse, snap.Ref())
		}
	}

	root := expandTilde(destRoot)
	if !pathWithinRoot(root, snap.Path) {
		return fmt.Errorf("snapshot path escapes storage root")
	}
	if _, err := os.Stat(snap.Path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, snap.Ref())
		}
		return err
	}
	return os.RemoveAll(snap.Path)
}

// Lock takes the advisory per-root file lock. A root already locked by
// another process fails with domain.ErrRunInProgress so the caller can
// skip the root instead of queueing behind it.
func (s *SnapshotStore) Lock(destRoot string) (func(), error) {
	root := expandTilde(destRoot)
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	fl := flock.New(filepath.Join(root, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire storage lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, root)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn().Err(err).Str(zerowrap.FieldPath, root).Msg("failed to release storage lock")
		}
	}, nil
}

// cloneTree recreates src at dst, hardlinking regular files, recreating
// directories and copying symlink targets. The origin's sidecar is
// skipped since the clone writes its own.
func cloneTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == metaFileName {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0750)
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		default:
			return os.Link(path, target)
		}
	})
}

func writeMeta(dir string, meta snapshotMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return nil
}

func readMeta(dir string) (snapshotMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return snapshotMeta{}, err
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return snapshotMeta{}, err
	}
	return meta, nil
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path[2:])
	}
	return path
}

func pathWithinRoot(root, path string) bool {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(filepath.Clean(rootAbs), filepath.Clean(pathAbs))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
