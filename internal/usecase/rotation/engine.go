// Package rotation resolves the set of due tiers for one destination
// into exactly one materialized transfer plus zero or more linked
// snapshots, then enforces per-tier retention.
package rotation

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
)

// Engine performs rotation against a snapshot store.
type Engine struct {
	store out.SnapshotStore
}

// NewEngine creates a rotation engine.
func NewEngine(store out.SnapshotStore) *Engine {
	return &Engine{store: store}
}

// Result reports what one rotation did for a destination.
type Result struct {
	Materialized *domain.Snapshot
	Linked       []domain.Snapshot
	Pruned       int
}

// Rotate materializes one snapshot for the first due tier in tier
// order, links every other due tier to it, and prunes the due tiers
// down to their keep counts. All due tiers were triggered by the same
// wall-clock window, so their content is identical by construction and
// the transfer runs exactly once.
//
// A transfer failure aborts the destination's run: no snapshot record
// is created and retention is left untouched, so the same window is
// retried on the next run.
func (e *Engine) Rotate(ctx context.Context, t out.Transferer, dest domain.Destination, due []domain.RetentionTier, timestamp string) (Result, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Rotate",
		"destination":         dest.Name,
	})
	log := zerowrap.FromCtx(ctx)

	var res Result
	if len(due) == 0 {
		return res, nil
	}

	materializing := due[0]
	snap, err := e.store.Materialize(ctx, t, dest.SourcePath, dest.Path, materializing.Name, timestamp)
	if err != nil {
		return res, fmt.Errorf("materialize %s: %w", materializing.Name, err)
	}
	res.Materialized = &snap
	log.Info().
		Str("tier", materializing.Name).
		Str(zerowrap.FieldPath, snap.Path).
		Msg("snapshot materialized")

	for _, tier := range due[1:] {
		linked, err := e.store.Link(ctx, dest.Path, snap, tier.Name)
		if err != nil {
			return res, fmt.Errorf("link %s: %w", tier.Name, err)
		}
		res.Linked = append(res.Linked, linked)
		log.Debug().
			Str("tier", tier.Name).
			Str("linked_from", snap.Ref()).
			Msg("snapshot linked")
	}

	pruned, err := e.Prune(ctx, dest, due)
	res.Pruned = pruned
	if err != nil {
		return res, err
	}
	return res, nil
}

// Prune deletes, for each given tier with a nonzero keep count, every
// snapshot beyond the keep most recent. A materialized snapshot that
// still has linked dependents in other tiers is retained regardless of
// age: its lifetime is bounded by its longest-lived link.
func (e *Engine) Prune(ctx context.Context, dest domain.Destination, tiers []domain.RetentionTier) (int, error) {
	log := zerowrap.FromCtx(ctx)

	deleted := 0
	for _, tier := range tiers {
		if tier.Keep <= 0 {
			continue
		}
		snaps, err := e.store.List(ctx, dest.Path, tier.Name)
		if err != nil {
			return deleted, fmt.Errorf("list %s: %w", tier.Name, err)
		}
		if len(snaps) <= tier.Keep {
			continue
		}
		for _, snap := range snaps[tier.Keep:] {
			if snap.Kind == domain.SnapshotMaterialized {
				deps, err := e.store.Dependents(ctx, dest.Path, snap)
				if err != nil {
					return deleted, fmt.Errorf("dependents of %s: %w", snap.Ref(), err)
				}
				if len(deps) > 0 {
					log.Debug().
						Str("snapshot", snap.Ref()).
						Int(zerowrap.FieldCount, len(deps)).
						Msg("retaining snapshot with live links")
					continue
				}
			}
			if err := e.store.Delete(ctx, dest.Path, snap); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", snap.Ref(), err)
			}
			deleted++
		}
	}

	if deleted > 0 {
		log.Info().
			Str("destination", dest.Name).
			Int(zerowrap.FieldCount, deleted).
			Msg("pruned snapshots")
	}
	return deleted, nil
}
