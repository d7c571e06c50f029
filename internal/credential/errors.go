package credential

import "errors"

// Domain errors for the credential package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, credential.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a credential does not exist.
	ErrNotFound = errors.New("credential: not found")

	// ErrExists is returned when creating a credential whose ID already exists.
	ErrExists = errors.New("credential: already exists")

	// ErrInvalidType is returned when a credential type is not recognised.
	ErrInvalidType = errors.New("credential: invalid type")

	// ErrEmptyValue is returned when a credential value is empty after normalization.
	ErrEmptyValue = errors.New("credential: empty value")
)
