package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bnema/rotavault/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := domain.RunSummary{
		ID:         "run-1",
		StartedAt:  time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 3, 1, 0, 0, time.UTC),
		Results: []domain.DestinationResult{
			{
				Destination:  "nas",
				Status:       domain.RunStatusSuccess,
				Materialized: "hourly",
				Linked:       []string{"daily", "weekly"},
				Pruned:       2,
			},
			{
				Destination: "offsite",
				Status:      domain.RunStatusFailed,
				Error:       "transfer failed: boom",
			},
		},
	}
	second := domain.RunSummary{
		ID:         "run-2",
		StartedAt:  time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 2, 3, 1, 0, 0, time.UTC),
		Results: []domain.DestinationResult{
			{Destination: "nas", Status: domain.RunStatusSkipped},
		},
	}

	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	require.Equal(t, "run-2", recent[0].ID)
	require.Equal(t, "run-1", recent[1].ID)

	nas := recent[1].Results[0]
	require.Equal(t, domain.RunStatusSuccess, nas.Status)
	require.Equal(t, "hourly", nas.Materialized)
	require.Equal(t, []string{"daily", "weekly"}, nas.Linked)
	require.Equal(t, 2, nas.Pruned)

	offsite := recent[1].Results[1]
	require.Equal(t, domain.RunStatusFailed, offsite.Status)
	require.Equal(t, "transfer failed: boom", offsite.Error)
}

func TestRecentLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, domain.RunSummary{
			ID:         string(rune('a' + i)),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		}))
	}

	recent, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "e", recent[0].ID)
}

func TestDuplicateRunIDRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	summary := domain.RunSummary{ID: "run-1", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, store.Record(ctx, summary))
	require.Error(t, store.Record(ctx, summary))
}
