// Package errs defines the shared error taxonomy for the palace core.
// Engines wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can branch with errors.Is without depending on message text.
package errs

import "errors"

var (
	// ErrNotFound means a referenced identity is not tracked.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the caller passed a malformed parameter
	// (bad line range, boost below the explicit-importance floor, etc).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLocked means a writer could not acquire the store write lock
	// within the busy timeout. Callers should retry with backoff.
	ErrLocked = errors.New("store locked")

	// ErrTimeout means an external collaborator (summarizer, base search)
	// exceeded its deadline.
	ErrTimeout = errors.New("collaborator timeout")

	// ErrUnavailable means an external collaborator failed outright.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrCorrupt means the store failed its integrity check on open.
	// Fatal for all operations; recovery is an operational procedure.
	ErrCorrupt = errors.New("store corrupt")
)
