package ingest

import "errors"

// Domain errors for the ingestion pipeline.
var (
	// ErrUnknownDevice is returned when a payload's device identity
	// matches no registered device. The delivery is dropped.
	ErrUnknownDevice = errors.New("ingest: unknown device")

	// ErrDuplicate is returned when a payload repeats a delivery seen
	// inside the dedupe window. Cameras re-send on slow acks.
	ErrDuplicate = errors.New("ingest: duplicate delivery")
)
