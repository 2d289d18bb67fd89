package scanner

import (
	"errors"
	"fmt"
)

// Domain errors for the scanner package.
//
//	if errors.Is(err, scanner.ErrConflict) {
//	    // re-read and retry
//	}
var (
	// ErrNotFound is returned for a device id the registry has never seen
	// (or that an admin has deleted).
	ErrNotFound = errors.New("scanner: device not found")

	// ErrConflict is returned when CompareAndUpdate loses a version race.
	ErrConflict = errors.New("scanner: version conflict")

	// ErrInvalidDeviceID is returned for an empty device id.
	ErrInvalidDeviceID = errors.New("scanner: invalid device id")

	// ErrInvalidMode is returned when a mode name is not ADD, REMOVE or LOOKUP.
	ErrInvalidMode = errors.New("scanner: invalid mode")
)

// ConflictError describes a failed compare-and-swap. It unwraps to ErrConflict.
type ConflictError struct {
	DeviceID string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scanner: version conflict for %s: expected %d, found %d", e.DeviceID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
