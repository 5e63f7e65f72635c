package types

import "errors"

// Error taxonomy. Callers classify failures with errors.Is; everything is
// wrapped with %w so context survives.
var (
	// ErrNotFound means an ID or short code resolved to nothing. Non-fatal
	// for batch operations.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a record or field is malformed. Rejected before
	// any write; never partially persisted.
	ErrValidation = errors.New("validation failed")

	// ErrSyncConflict means the remote moved during a sync run and the
	// bounded retry budget was exhausted. Re-running sync is safe.
	ErrSyncConflict = errors.New("sync conflict")

	// ErrSyncUnavailable means no remote is reachable. Local operation
	// continues; sync degrades to a local commit.
	ErrSyncUnavailable = errors.New("sync unavailable")

	// ErrIntegrity means the dataset violates an invariant (missing mapping
	// entry, duplicate internal ID, orphaned dependency target).
	ErrIntegrity = errors.New("integrity error")
)
