package domain

import "errors"

// Domain errors represent business-level errors that can occur in the
// system. These errors are used across layers to communicate specific
// failure conditions.
var (
	// Cron expression errors (construction-time; a destination carrying
	// a malformed schedule is excluded from scheduling, others proceed)
	ErrMalformedExpression = errors.New("malformed cron expression")
	ErrInvalidRange        = errors.New("invalid range in cron field")
	ErrInvalidValue        = errors.New("value out of range in cron field")
	ErrMalformedStep       = errors.New("malformed step in cron field")

	// Rotation errors
	ErrTransferFailed   = errors.New("transfer failed")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotInUse guards the retention invariant: a materialized
	// snapshot with live linked dependents must never be deleted.
	ErrSnapshotInUse = errors.New("materialized snapshot has linked dependents")

	// Run errors
	ErrRunInProgress = errors.New("a run is already in progress for this storage root")

	// Config errors
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrMethodNotFound      = errors.New("transfer method not found")
)
