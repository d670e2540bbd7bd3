// Package backup orchestrates scheduled backup runs: per-tier due-ness
// resolution, rotation per destination, and last-run bookkeeping.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
	"github.com/bnema/rotavault/internal/usecase/rotation"
	"github.com/bnema/rotavault/internal/usecase/schedule"
)

const defaultWorkers = 4

// Service implements the BackupService boundary.
type Service struct {
	sources []domain.Source
	methods map[string]out.Transferer
	store   out.SnapshotStore
	state   out.StateStore
	history out.HistoryStore
	engine  *rotation.Engine
	skew    time.Duration
	workers int
	log     zerowrap.Logger

	// schedules holds the parsed expression per destination and tier.
	// Destinations whose schedules failed to parse land in excluded and
	// never run; the rest of the batch proceeds.
	schedules map[string]map[string]*schedule.Expression
	excluded  map[string]error
}

// NewService creates the orchestration service. Cron expressions are
// parsed here, once: parse failures exclude only the owning destination
// from scheduling and are logged, evaluation later never fails.
func NewService(
	sources []domain.Source,
	methods map[string]out.Transferer,
	store out.SnapshotStore,
	state out.StateStore,
	history out.HistoryStore,
	skew time.Duration,
	workers int,
	log zerowrap.Logger,
) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	s := &Service{
		sources:   sources,
		methods:   methods,
		store:     store,
		state:     state,
		history:   history,
		engine:    rotation.NewEngine(store),
		skew:      skew,
		workers:   workers,
		log:       log,
		schedules: make(map[string]map[string]*schedule.Expression),
		excluded:  make(map[string]error),
	}

	for _, src := range sources {
		for _, dest := range src.Destinations {
			parsed := make(map[string]*schedule.Expression, len(dest.Tiers))
			for _, tier := range dest.Tiers {
				expr, err := schedule.Parse(tier.Schedule)
				if err != nil {
					s.excluded[dest.Name] = fmt.Errorf("tier %s: %w", tier.Name, err)
					log.Error().
						Err(err).
						Str("destination", dest.Name).
						Str("tier", tier.Name).
						Msg("malformed schedule, destination excluded from scheduling")
					break
				}
				parsed[tier.Name] = expr
			}
			if _, bad := s.excluded[dest.Name]; !bad {
				s.schedules[dest.Name] = parsed
			}
		}
	}
	return s
}

// Run executes one batch run at the given instant. Destinations run
// concurrently under a bounded worker pool; tiers within a destination
// are strictly sequential inside the rotation engine. The last-run
// marker advances to now minus the skew margin only when no destination
// failed, so a failed destination's window is retried next run.
func (s *Service) Run(ctx context.Context, now time.Time) (domain.RunSummary, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Run",
	})
	log := zerowrap.FromCtx(ctx)

	state, err := s.state.Load()
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("load run state: %w", err)
	}
	log.Info().
		Str("last_run", state.LastRun.Format(time.RFC3339)).
		Str("now", now.Format(time.RFC3339)).
		Msg("starting run")

	summary := s.runDestinations(ctx, s.destinations(), state.LastRun, now)
	s.record(ctx, summary)

	if summary.Failed() {
		log.Warn().Msg("run had failures, last-run marker not advanced")
		return summary, nil
	}

	if err := s.state.Save(domain.RunState{LastRun: now.Add(-s.skew)}); err != nil {
		return summary, fmt.Errorf("save run state: %w", err)
	}
	return summary, nil
}

// RunDestination runs a single destination by name against the
// persisted last run. The process-wide last-run marker is not advanced:
// it accounts for the whole batch, and marking it here would silently
// skip every other destination's window.
func (s *Service) RunDestination(ctx context.Context, name string, now time.Time) (domain.RunSummary, error) {
	dest, ok := s.lookup(name)
	if !ok {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", domain.ErrDestinationNotFound, name)
	}

	state, err := s.state.Load()
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("load run state: %w", err)
	}

	summary := s.runDestinations(ctx, []domain.Destination{dest}, state.LastRun, now)
	s.record(ctx, summary)
	return summary, nil
}

// Prune applies retention to every destination without transferring
// anything. All tiers participate, not only due ones.
func (s *Service) Prune(ctx context.Context) (domain.RunSummary, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Prune",
	})

	started := time.Now().UTC()
	summary := domain.RunSummary{ID: uuid.NewString(), StartedAt: started}
	for _, dest := range s.destinations() {
		result := domain.DestinationResult{Destination: dest.Name, Status: domain.RunStatusSuccess}

		// Mirror destinations keep no local snapshots to prune.
		if method, ok := s.methods[dest.Method]; ok && !method.LinkCapable() {
			result.Status = domain.RunStatusSkipped
			summary.Results = append(summary.Results, result)
			continue
		}

		unlock, err := s.store.Lock(dest.Path)
		if err != nil {
			if errors.Is(err, domain.ErrRunInProgress) {
				result.Status = domain.RunStatusSkipped
				result.Error = err.Error()
				summary.Results = append(summary.Results, result)
				continue
			}
			result.Status = domain.RunStatusFailed
			result.Error = err.Error()
			summary.Results = append(summary.Results, result)
			continue
		}

		pruned, err := s.engine.Prune(ctx, dest, dest.Tiers)
		unlock()
		result.Pruned = pruned
		if err != nil {
			result.Status = domain.RunStatusFailed
			result.Error = err.Error()
		}
		summary.Results = append(summary.Results, result)
	}
	summary.FinishedAt = time.Now().UTC()
	s.record(ctx, summary)
	return summary, nil
}

// ListSnapshots returns every snapshot of one destination, tier by tier
// in configured order, newest first within each tier.
func (s *Service) ListSnapshots(ctx context.Context, destination string) ([]domain.Snapshot, error) {
	dest, ok := s.lookup(destination)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDestinationNotFound, destination)
	}

	var snaps []domain.Snapshot
	for _, tier := range dest.Tiers {
		tierSnaps, err := s.store.List(ctx, dest.Path, tier.Name)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", dest.Name, tier.Name, err)
		}
		snaps = append(snaps, tierSnaps...)
	}
	return snaps, nil
}

func (s *Service) runDestinations(ctx context.Context, dests []domain.Destination, lastRun, now time.Time) domain.RunSummary {
	started := time.Now().UTC()
	results := make([]domain.DestinationResult, len(dests))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, dest := range dests {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, d domain.Destination) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = s.runOne(ctx, d, lastRun, now)
		}(i, dest)
	}
	wg.Wait()

	return domain.RunSummary{
		ID:         uuid.NewString(),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Results:    results,
	}
}

// runOne evaluates and rotates a single destination. A failure here is
// recorded in the result and never aborts the batch.
func (s *Service) runOne(ctx context.Context, dest domain.Destination, lastRun, now time.Time) domain.DestinationResult {
	log := zerowrap.FromCtx(ctx)
	result := domain.DestinationResult{Destination: dest.Name, Status: domain.RunStatusSuccess}

	if err, bad := s.excluded[dest.Name]; bad {
		result.Status = domain.RunStatusSkipped
		result.Error = err.Error()
		return result
	}

	method, ok := s.methods[dest.Method]
	if !ok {
		result.Status = domain.RunStatusFailed
		result.Error = fmt.Sprintf("%s: %s", domain.ErrMethodNotFound, dest.Method)
		return result
	}

	// One evaluation per tier: tiers have independent schedules and the
	// same run may satisfy several of them at once.
	var due []domain.RetentionTier
	for _, tier := range dest.Tiers {
		if s.schedules[dest.Name][tier.Name].IsDue(lastRun, now) {
			due = append(due, tier)
		}
	}
	if len(due) == 0 {
		result.Status = domain.RunStatusSkipped
		return result
	}

	// A method that cannot hardlink writes to storage the engine cannot
	// manage, typically a remote path. Such destinations are validated
	// to a single tier and mirror the source directly: one transfer,
	// no snapshot directories, nothing to prune.
	if !method.LinkCapable() {
		if err := method.Transfer(ctx, dest.SourcePath, dest.Path); err != nil {
			log.Error().
				Err(err).
				Str("destination", dest.Name).
				Msg("mirror transfer failed")
			result.Status = domain.RunStatusFailed
			result.Error = fmt.Sprintf("%s: %s", domain.ErrTransferFailed, err)
			return result
		}
		result.Materialized = due[0].Name
		return result
	}

	unlock, err := s.store.Lock(dest.Path)
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			log.Warn().
				Str("destination", dest.Name).
				Msg("storage root locked by another run, skipping")
			result.Status = domain.RunStatusSkipped
			result.Error = err.Error()
			return result
		}
		result.Status = domain.RunStatusFailed
		result.Error = err.Error()
		return result
	}
	defer unlock()

	res, err := s.engine.Rotate(ctx, method, dest, due, now.Format(domain.TimestampLayout))
	if res.Materialized != nil {
		result.Materialized = res.Materialized.Tier
	}
	for _, linked := range res.Linked {
		result.Linked = append(result.Linked, linked.Tier)
	}
	result.Pruned = res.Pruned
	if err != nil {
		log.Error().
			Err(err).
			Str("destination", dest.Name).
			Msg("destination run failed")
		result.Status = domain.RunStatusFailed
		result.Error = err.Error()
	}
	return result
}

func (s *Service) destinations() []domain.Destination {
	var dests []domain.Destination
	for _, src := range s.sources {
		dests = append(dests, src.Destinations...)
	}
	return dests
}

func (s *Service) lookup(name string) (domain.Destination, bool) {
	for _, dest := range s.destinations() {
		if dest.Name == name {
			return dest, true
		}
	}
	return domain.Destination{}, false
}

func (s *Service) record(ctx context.Context, summary domain.RunSummary) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, summary); err != nil {
		s.log.Warn().Err(err).Msg("failed to record run summary")
	}
}
