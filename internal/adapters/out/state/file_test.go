package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bnema/rotavault/internal/domain"
)

func TestFileStore(t *testing.T) {
	t.Run("absent file loads as epoch zero", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "lastrun"))

		state, err := store.Load()
		require.NoError(t, err)
		require.Equal(t, int64(0), state.LastRun.Unix())
	})

	t.Run("round trip at second resolution", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "nested", "lastrun"))
		saved := time.Date(2024, 5, 1, 3, 0, 58, 0, time.UTC)

		require.NoError(t, store.Save(domain.RunState{LastRun: saved}))

		state, err := store.Load()
		require.NoError(t, err)
		require.Equal(t, saved.Unix(), state.LastRun.Unix())
	})

	t.Run("corrupt content is an error, not a silent reset", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lastrun")
		require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0600))

		_, err := NewFileStore(path).Load()
		require.Error(t, err)
	})

	t.Run("save leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileStore(filepath.Join(dir, "lastrun"))
		require.NoError(t, store.Save(domain.RunState{LastRun: time.Now()}))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "lastrun", entries[0].Name())
	})
}
