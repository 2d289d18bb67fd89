package resolver

import "errors"

var (
	// ErrEmptyCode is returned when resolving an empty barcode.
	ErrEmptyCode = errors.New("resolver: empty code")

	// ErrUnavailable is returned when the backing service cannot be reached
	// or answers with a server error.
	ErrUnavailable = errors.New("resolver: item service unavailable")

	// ErrBadResponse is returned when the item service answers with
	// something that cannot be decoded.
	ErrBadResponse = errors.New("resolver: bad response from item service")
)
