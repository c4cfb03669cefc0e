// README: Sentinel errors shared by the core, storage and HTTP layers.
package domain

import "errors"

var (
	// ErrNotFound is returned when a ride, group or cab does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks caller input that violates a field constraint.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a ride status change is not in
	// the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict is returned when a concurrent writer changed the row first.
	ErrConflict = errors.New("state conflict")
)
