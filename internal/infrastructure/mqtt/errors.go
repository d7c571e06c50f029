package mqtt

import "errors"

// Sentinel errors for broker operations.
var (
	// ErrNotConnected is returned when publishing while the broker
	// link is down. Callers treat it as a skipped side channel, not a
	// failure of the operation that triggered the publish.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps a failed initial broker connection.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a rejected or timed-out publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
