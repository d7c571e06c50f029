package event

import "errors"

// Domain errors for the event package.
var (
	// ErrNotFound is returned when an event ID does not exist.
	ErrNotFound = errors.New("event: not found")

	// ErrExists is returned when inserting an event whose ID already exists.
	ErrExists = errors.New("event: already exists")

	// ErrInvalid is returned when an event fails validation before insert.
	ErrInvalid = errors.New("event: invalid")
)
