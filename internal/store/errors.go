package store

import (
	"errors"

	"github.com/ashureev/hacklab-agent/internal/shared"
)

// Sentinel errors returned by Repository operations. Anything else wrapped
// out of the store is a storage-engine failure and is fatal to the calling
// operation.
var (
	// ErrNotFound indicates a referenced session or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is (or wraps) ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// isMissingParent reports whether the engine rejected an insert because its
// foreign-key target is absent.
func isMissingParent(err error) bool {
	return shared.IsForeignKeyViolation(err)
}
