package domain

import "errors"

var (
	// ErrValidation reports missing or malformed required fields.
	// Rejected at the boundary; nothing is partially recorded.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition reports a lifecycle transition that the
	// commission state machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)
