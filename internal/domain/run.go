package domain

import "time"

// RunState is the persisted process-wide marker of the last successful
// run. Absent state reads as epoch zero, so a first-ever run considers
// everything due since the beginning of time.
type RunState struct {
	LastRun time.Time
}

// RunStatus is the per-destination outcome of one run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	// RunStatusSkipped means nothing was due, the destination was
	// excluded by a malformed schedule, or another process held the
	// storage lock.
	RunStatusSkipped RunStatus = "skipped"
)

// DestinationResult summarizes what one run did for one destination.
type DestinationResult struct {
	Destination  string
	Status       RunStatus
	Materialized string // tier that performed the transfer, empty if none
	Linked       []string
	Pruned       int
	Error        string
}

// RunSummary is the user-visible report of one batch run.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []DestinationResult
}

// Failed reports whether any destination failed in this run.
func (r RunSummary) Failed() bool {
	for _, res := range r.Results {
		if res.Status == RunStatusFailed {
			return true
		}
	}
	return false
}
