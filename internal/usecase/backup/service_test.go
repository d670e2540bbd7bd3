package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/require"

	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
)

func testLogger() zerowrap.Logger {
	return zerowrap.New(zerowrap.Config{Level: "warn"})
}

type fakeSnapshotStore struct {
	mu           sync.Mutex
	snaps        map[string]map[string][]domain.Snapshot // root -> tier -> snapshots
	locked       map[string]bool
	materialized int
	linked       int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{
		snaps:  make(map[string]map[string][]domain.Snapshot),
		locked: make(map[string]bool),
	}
}

func (f *fakeSnapshotStore) tierSnaps(root, tier string) []domain.Snapshot {
	if f.snaps[root] == nil {
		return nil
	}
	return f.snaps[root][tier]
}

func (f *fakeSnapshotStore) add(root string, snap domain.Snapshot) {
	if f.snaps[root] == nil {
		f.snaps[root] = make(map[string][]domain.Snapshot)
	}
	f.snaps[root][snap.Tier] = append(f.snaps[root][snap.Tier], snap)
}

func (f *fakeSnapshotStore) Materialize(ctx context.Context, t out.Transferer, sourcePath, destRoot, tier, timestamp string) (domain.Snapshot, error) {
	if err := t.Transfer(ctx, sourcePath, destRoot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.materialized++
	snap := domain.Snapshot{Tier: tier, Timestamp: timestamp, Kind: domain.SnapshotMaterialized}
	f.add(destRoot, snap)
	return snap, nil
}

func (f *fakeSnapshotStore) Link(_ context.Context, destRoot string, from domain.Snapshot, tier string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked++
	snap := domain.Snapshot{Tier: tier, Timestamp: from.Timestamp, Kind: domain.SnapshotLinked, LinkedFrom: from.Ref()}
	f.add(destRoot, snap)
	return snap, nil
}

func (f *fakeSnapshotStore) List(_ context.Context, destRoot, tier string) ([]domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := append([]domain.Snapshot(nil), f.tierSnaps(destRoot, tier)...)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp > snaps[j].Timestamp })
	return snaps, nil
}

func (f *fakeSnapshotStore) Dependents(_ context.Context, destRoot string, snap domain.Snapshot) ([]domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deps []domain.Snapshot
	for tier, snaps := range f.snaps[destRoot] {
		if tier == snap.Tier {
			continue
		}
		for _, candidate := range snaps {
			if candidate.Kind == domain.SnapshotLinked && candidate.LinkedFrom == snap.Ref() {
				deps = append(deps, candidate)
			}
		}
	}
	return deps, nil
}

func (f *fakeSnapshotStore) Delete(_ context.Context, destRoot string, snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tierSnaps(destRoot, snap.Tier)[:0]
	for _, candidate := range f.tierSnaps(destRoot, snap.Tier) {
		if candidate.Ref() != snap.Ref() {
			kept = append(kept, candidate)
		}
	}
	f.snaps[destRoot][snap.Tier] = kept
	return nil
}

func (f *fakeSnapshotStore) Lock(destRoot string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[destRoot] {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, destRoot)
	}
	f.locked[destRoot] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.locked[destRoot] = false
	}, nil
}

type fakeStateStore struct {
	state domain.RunState
	saves int
}

func (f *fakeStateStore) Load() (domain.RunState, error) { return f.state, nil }

func (f *fakeStateStore) Save(state domain.RunState) error {
	f.state = state
	f.saves++
	return nil
}

type fakeHistoryStore struct {
	recorded []domain.RunSummary
}

func (f *fakeHistoryStore) Record(_ context.Context, summary domain.RunSummary) error {
	f.recorded = append(f.recorded, summary)
	return nil
}

func (f *fakeHistoryStore) Recent(context.Context, int) ([]domain.RunSummary, error) { return nil, nil }
func (f *fakeHistoryStore) Close() error                                             { return nil }

type fakeTransferer struct {
	mu    sync.Mutex
	calls int
	fail  bool
	local bool
}

func (f *fakeTransferer) Transfer(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeTransferer) LinkCapable() bool { return f.local }

func sourcesWith(dests ...domain.Destination) []domain.Source {
	return []domain.Source{{Path: "/srv/data", Destinations: dests}}
}

func resultFor(t *testing.T, summary domain.RunSummary, name string) domain.DestinationResult {
	t.Helper()
	for _, res := range summary.Results {
		if res.Destination == name {
			return res
		}
	}
	t.Fatalf("no result for destination %s", name)
	return domain.DestinationResult{}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("overlapping tiers share one transfer", func(t *testing.T) {
		store := newFakeSnapshotStore()
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}
		transferer := &fakeTransferer{local: true}
		dest := domain.Destination{
			Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{
				{Name: "five", Schedule: "*/5 * * * *", Keep: 3},
				{Name: "ten", Schedule: "*/10 * * * *", Keep: 2},
			},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": transferer},
			store, state, nil, 2*time.Second, 2, testLogger())

		// 00:00 -> 00:05, only the five-minute tier fires.
		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
		require.NoError(t, err)
		res := resultFor(t, summary, "nas")
		require.Equal(t, domain.RunStatusSuccess, res.Status)
		require.Equal(t, "five", res.Materialized)
		require.Empty(t, res.Linked)
		require.Equal(t, 1, transferer.calls)

		// 00:05 (minus skew) -> 00:10, both tiers fire but one transfer runs.
		summary, err = svc.Run(ctx, time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC))
		require.NoError(t, err)
		res = resultFor(t, summary, "nas")
		require.Equal(t, "five", res.Materialized)
		require.Equal(t, []string{"ten"}, res.Linked)
		require.Equal(t, 2, transferer.calls)
		require.Equal(t, 2, store.materialized)
		require.Equal(t, 1, store.linked)
	})

	t.Run("successful run advances lastRun with skew margin", func(t *testing.T) {
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		transferer := &fakeTransferer{local: true}
		dest := domain.Destination{
			Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": transferer},
			newFakeSnapshotStore(), state, nil, 2*time.Second, 2, testLogger())

		now := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
		_, err := svc.Run(ctx, now)
		require.NoError(t, err)
		require.Equal(t, 1, state.saves)
		require.Equal(t, now.Add(-2*time.Second), state.state.LastRun)
	})

	t.Run("failed destination blocks lastRun advance but not others", func(t *testing.T) {
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		good := &fakeTransferer{local: true}
		bad := &fakeTransferer{local: true, fail: true}
		tiers := []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}}
		dests := []domain.Destination{
			{Name: "good", SourcePath: "/srv/data", Method: "good", Path: "/backups/good", Tiers: tiers},
			{Name: "bad", SourcePath: "/srv/data", Method: "bad", Path: "/backups/bad", Tiers: tiers},
		}
		svc := NewService(sourcesWith(dests...), map[string]out.Transferer{"good": good, "bad": bad},
			newFakeSnapshotStore(), state, nil, 2*time.Second, 2, testLogger())

		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.True(t, summary.Failed())
		require.Equal(t, domain.RunStatusSuccess, resultFor(t, summary, "good").Status)
		require.Equal(t, domain.RunStatusFailed, resultFor(t, summary, "bad").Status)
		require.Zero(t, state.saves)
	})

	t.Run("malformed schedule excludes only its destination", func(t *testing.T) {
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		transferer := &fakeTransferer{local: true}
		dests := []domain.Destination{
			{Name: "ok", SourcePath: "/srv/data", Method: "local", Path: "/backups/ok",
				Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}}},
			{Name: "broken", SourcePath: "/srv/data", Method: "local", Path: "/backups/broken",
				Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "not a cron", Keep: 2}}},
		}
		svc := NewService(sourcesWith(dests...), map[string]out.Transferer{"local": transferer},
			newFakeSnapshotStore(), state, nil, 2*time.Second, 2, testLogger())

		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, domain.RunStatusSuccess, resultFor(t, summary, "ok").Status)

		broken := resultFor(t, summary, "broken")
		require.Equal(t, domain.RunStatusSkipped, broken.Status)
		require.NotEmpty(t, broken.Error)
	})

	t.Run("locked storage root skips the destination", func(t *testing.T) {
		store := newFakeSnapshotStore()
		store.locked["/backups/nas"] = true
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		dest := domain.Destination{
			Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": &fakeTransferer{local: true}},
			store, state, nil, 2*time.Second, 2, testLogger())

		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, domain.RunStatusSkipped, resultFor(t, summary, "nas").Status)
	})

	t.Run("nothing due still counts as a successful run", func(t *testing.T) {
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}}
		dest := domain.Destination{
			Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{{Name: "daily", Schedule: "0 3 * * *", Keep: 2}},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": &fakeTransferer{local: true}},
			newFakeSnapshotStore(), state, nil, 2*time.Second, 2, testLogger())

		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, domain.RunStatusSkipped, resultFor(t, summary, "nas").Status)
		require.Equal(t, 1, state.saves)
	})

	t.Run("mirror destination transfers directly", func(t *testing.T) {
		store := newFakeSnapshotStore()
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		remote := &fakeTransferer{local: false}
		dest := domain.Destination{
			Name: "offsite", SourcePath: "/srv/data", Method: "scp", Path: "backup@host:/backups",
			Tiers: []domain.RetentionTier{{Name: "daily", Schedule: "0 3 * * *", Keep: 0}},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"scp": remote},
			store, state, nil, 2*time.Second, 2, testLogger())

		summary, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		res := resultFor(t, summary, "offsite")
		require.Equal(t, domain.RunStatusSuccess, res.Status)
		require.Equal(t, "daily", res.Materialized)
		require.Equal(t, 1, remote.calls)
		require.Zero(t, store.materialized)
	})

	t.Run("run summaries are recorded", func(t *testing.T) {
		history := &fakeHistoryStore{}
		state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
		dest := domain.Destination{
			Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}},
		}
		svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": &fakeTransferer{local: true}},
			newFakeSnapshotStore(), state, history, 2*time.Second, 2, testLogger())

		_, err := svc.Run(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, history.recorded, 1)
		require.NotEmpty(t, history.recorded[0].ID)
	})
}

func TestRunDestination(t *testing.T) {
	ctx := context.Background()
	state := &fakeStateStore{state: domain.RunState{LastRun: time.Unix(0, 0)}}
	transferer := &fakeTransferer{local: true}
	dests := []domain.Destination{
		{Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
			Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}}},
		{Name: "other", SourcePath: "/srv/data", Method: "local", Path: "/backups/other",
			Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}}},
	}
	svc := NewService(sourcesWith(dests...), map[string]out.Transferer{"local": transferer},
		newFakeSnapshotStore(), state, nil, 2*time.Second, 2, testLogger())

	t.Run("runs only the named destination and keeps lastRun", func(t *testing.T) {
		summary, err := svc.RunDestination(ctx, "nas", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, summary.Results, 1)
		require.Equal(t, "nas", summary.Results[0].Destination)
		require.Zero(t, state.saves)
	})

	t.Run("unknown destination", func(t *testing.T) {
		_, err := svc.RunDestination(ctx, "absent", time.Now())
		require.ErrorIs(t, err, domain.ErrDestinationNotFound)
	})
}

func TestServicePrune(t *testing.T) {
	ctx := context.Background()
	store := newFakeSnapshotStore()
	for i := 0; i < 4; i++ {
		store.add("/backups/nas", domain.Snapshot{
			Tier: "hourly", Timestamp: fmt.Sprintf("2024-01-01_0%d:00", i), Kind: domain.SnapshotMaterialized,
		})
	}
	dest := domain.Destination{
		Name: "nas", SourcePath: "/srv/data", Method: "local", Path: "/backups/nas",
		Tiers: []domain.RetentionTier{{Name: "hourly", Schedule: "0 * * * *", Keep: 2}},
	}
	svc := NewService(sourcesWith(dest), map[string]out.Transferer{"local": &fakeTransferer{local: true}},
		store, &fakeStateStore{}, nil, 2*time.Second, 2, testLogger())

	summary, err := svc.Prune(ctx)
	require.NoError(t, err)
	res := resultFor(t, summary, "nas")
	require.Equal(t, domain.RunStatusSuccess, res.Status)
	require.Equal(t, 2, res.Pruned)

	snaps, err := svc.ListSnapshots(ctx, "nas")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
}
