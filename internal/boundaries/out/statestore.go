package out

import "github.com/bnema/rotavault/internal/domain"

// StateStore persists the process-wide last-run marker.
type StateStore interface {
	// Load reads the persisted state. Absent state is not an error and
	// loads as epoch zero.
	Load() (domain.RunState, error)

	// Save overwrites the state atomically. Called once, after a fully
	// successful run.
	Save(state domain.RunState) error
}
