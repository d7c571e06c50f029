package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID or identifier does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrExists is returned when creating a device with an ID that already exists.
	ErrExists = errors.New("device: already exists")

	// ErrInvalidBrand is returned when a brand value is not recognised.
	ErrInvalidBrand = errors.New("device: invalid brand")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidAddress is returned when host/port validation fails.
	ErrInvalidAddress = errors.New("device: invalid address")
)
