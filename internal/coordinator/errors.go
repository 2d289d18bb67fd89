package coordinator

import "errors"

var (
	// ErrResolution wraps a failure of the item resolver.
	ErrResolution = errors.New("coordinator: item resolution failed")

	// ErrNoResolver is returned for a barcode scan when no resolver is
	// configured.
	ErrNoResolver = errors.New("coordinator: no item resolver configured")

	// ErrNotAssociated is returned by Disassociate for an unbound device.
	ErrNotAssociated = errors.New("coordinator: scanner is not currently associated")
)
