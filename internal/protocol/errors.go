package protocol

import (
	"errors"
	"fmt"
)

// Decode errors. Every error returned by Decode is a *DecodeError that
// unwraps to one of these.
var (
	ErrEmptyScan        = errors.New("protocol: empty scan")
	ErrUnknownCommand   = errors.New("protocol: unknown command")
	ErrMalformedCommand = errors.New("protocol: malformed command")
	ErrMissingArgument  = errors.New("protocol: missing command argument")
	ErrInvalidMode      = errors.New("protocol: invalid mode")
)

// DecodeError reports why a raw scan could not be decoded.
type DecodeError struct {
	Raw     string
	Command string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Command)
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
