package audit

import "errors"

// ErrMissingEventType is returned by Create for an entry without an event type.
var ErrMissingEventType = errors.New("audit: event type is required")
