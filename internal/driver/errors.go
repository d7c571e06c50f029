package driver

import "errors"

// Domain errors for the driver layer.
var (
	// ErrNotSupported is returned when a driver does not implement a
	// capability for the given device type. Callers should skip the
	// operation rather than mark the device unhealthy.
	ErrNotSupported = errors.New("driver: capability not supported")

	// ErrUnknownBrand is returned when no driver is registered for a
	// device's brand.
	ErrUnknownBrand = errors.New("driver: unknown brand")

	// ErrDeviceRejected is returned when the device understood the
	// request but refused it (bad parameters, full credential store,
	// duplicate entry).
	ErrDeviceRejected = errors.New("driver: device rejected request")
)
