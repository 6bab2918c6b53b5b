package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a write loses against the current state: a duplicate
	// key, or a single-use record that was already consumed.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned when a record fails a storage level constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
