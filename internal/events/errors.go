package events

import "errors"

var (
	// ErrValidation is returned for malformed publish or subscribe input,
	// before any side effect.
	ErrValidation = errors.New("invalid input")
	// ErrNotPending is returned when accepting a subscription that is not a
	// pending request.
	ErrNotPending = errors.New("subscription is not a pending request")
	// ErrNoRecordsUpdated is returned when accept's style update matched
	// nothing.
	ErrNoRecordsUpdated = errors.New("no records updated")
)
