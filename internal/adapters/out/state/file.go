// Package state persists the process-wide last-run marker as a single
// Unix-seconds scalar in a plain file.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/rotavault/internal/domain"
)

// FileStore reads and writes the last-run marker file.
type FileStore struct {
	path string
}

// NewFileStore creates a state store at the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the marker. An absent file is a first run and loads as
// epoch zero, so everything since the beginning of time is due.
func (s *FileStore) Load() (domain.RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RunState{LastRun: time.Unix(0, 0)}, nil
		}
		return domain.RunState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	seconds, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return domain.RunState{}, fmt.Errorf("corrupt state file %s: %w", s.path, err)
	}
	return domain.RunState{LastRun: time.Unix(seconds, 0)}, nil
}

// Save writes the marker atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated marker behind.
func (s *FileStore) Save(state domain.RunState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	content := strconv.FormatInt(state.LastRun.Unix(), 10) + "\n"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize state file: %w", err)
	}
	return nil
}
