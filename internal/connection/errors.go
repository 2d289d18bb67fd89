package connection

import "errors"

var (
	// ErrInvalidUIInstanceID is returned when registering an empty id.
	ErrInvalidUIInstanceID = errors.New("connection: invalid ui instance id")

	// ErrNilSender is returned when registering a nil sender.
	ErrNilSender = errors.New("connection: nil sender")

	// ErrSendBufferFull is returned by a Sender whose outbound queue is full.
	ErrSendBufferFull = errors.New("connection: send buffer full")

	// ErrClosed is returned by a Sender that has been closed.
	ErrClosed = errors.New("connection: closed")
)
