package services

import "errors"

// Caller-facing error taxonomy. Handlers map these onto HTTP status codes with
// errors.Is; anything not in this list is treated as an internal failure.
var (
	// ErrValidation: the request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: the referenced listing or slot does not exist, or the
	// slot has no occupant to release.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the operation is not valid for the listing's current
	// status.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrCapacityExceeded: the target partition has no free slot, or every
	// claim attempt within the retry bound lost its race.
	ErrCapacityExceeded = errors.New("partition capacity exceeded")
	// ErrConflict: a concurrent operation won the race; the caller may retry.
	ErrConflict = errors.New("conflicting concurrent operation")
)
