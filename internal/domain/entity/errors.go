package entity

import "errors"

var (
	// ErrValidation is returned for malformed input; nothing is mutated
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the caller may not act for the department
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the target record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalized is returned when an aggregate is released and cannot be modified
	ErrAlreadyFinalized = errors.New("already finalized, cannot modify")

	// ErrVersionConflict is returned by conditional writes when the stored version moved on
	ErrVersionConflict = errors.New("version conflict")

	// ErrConcurrentModification is returned after the optimistic retry budget is spent
	ErrConcurrentModification = errors.New("concurrent modification, please resubmit")

	// ErrSequenceExhausted is returned when no unique identifier could be allocated
	ErrSequenceExhausted = errors.New("sequence exhausted")

	// ErrStorageBusy is returned when the store could not take a lock in time
	ErrStorageBusy = errors.New("storage busy")
)
