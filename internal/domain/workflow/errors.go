package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger has no transition from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a stored status does not map to a state
	ErrInvalidState = errors.New("invalid state")
)
