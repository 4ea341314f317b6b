package status

import "errors"

// Domain error taxonomy. Handlers translate these into HTTP responses;
// services wrap them with context via fmt.Errorf("...: %w", err).
var (
	ErrNotFound         = errors.New("status: not found")
	ErrForbidden        = errors.New("status: forbidden")
	ErrAlreadyProcessed = errors.New("request: already processed")
	ErrAlreadyUsed      = errors.New("ticket: already used")
	ErrCancelled        = errors.New("ticket: cancelled")
	ErrExpired          = errors.New("ticket: expired")
	ErrInvalidState     = errors.New("ticket: not in a usable state")
	ErrSoldOut          = errors.New("event: sold out")
	ErrCapacityExceeded = errors.New("event: capacity exceeded")
	ErrEventPassed      = errors.New("event: already passed")
	ErrEventNotActive   = errors.New("event: not active")
	ErrValidation       = errors.New("status: validation failed")
)
