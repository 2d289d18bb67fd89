package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeScanAccepted      = "scan.accepted"
	TypeScanRejected      = "scan.rejected"
	TypeStateChanged      = "state.changed"
	TypeDeliveryAttempted = "delivery.attempted"
	TypeConnectionOpened  = "connection.opened"
	TypeConnectionClosed  = "connection.closed"
)

// Event is one audit record.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	DeviceID     string         `json:"device_id,omitempty"`
	UIInstanceID string         `json:"ui_instance_id,omitempty"`
	Outcome      string         `json:"outcome,omitempty"`
	Version      *uint64        `json:"version,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// WithVersion returns a copy of e carrying version v.
func (e Event) WithVersion(v uint64) Event {
	e.Version = &v
	return e
}

// fill assigns an ID and timestamp when missing.
func (e *Event) fill(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}
