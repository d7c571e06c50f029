package influxdb

import "errors"

// Sentinel errors for the telemetry sink.
var (
	// ErrNotConnected indicates the sink lost its server. Point writes
	// are dropped silently in this state; only health checks surface it.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed initial connection or ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the config has the sink
	// switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
