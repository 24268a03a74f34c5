package store

import "errors"

// Sentinel errors returned by Store and the sqlite-backed repositories. The
// teacher's own copy of this pattern (internal/persistence/errors.go in the
// example pack) defined only ErrNotFound while its repository files
// referenced three further identifiers that were never declared; this
// package defines all of them properly (see DESIGN.md).
var (
	ErrNotFound              = errors.New("store: not found")
	ErrDuplicate             = errors.New("store: duplicate record")
	ErrConstraintViolation   = errors.New("store: constraint violation")
	ErrForeignKeyViolation   = errors.New("store: foreign key violation")
	// ErrConflict is Store's retryable write outcome (spec §4.1 applyWrite).
	ErrConflict = errors.New("store: write conflict")
	// ErrFatal is Store's non-retryable write outcome (spec §4.1 applyWrite).
	ErrFatal = errors.New("store: fatal write error")
	// ErrBusy is WriteQueue's backpressure outcome when the queue is
	// saturated or the circuit breaker has tripped (spec §5).
	ErrBusy = errors.New("store: write queue busy")
)
