package scanner

import (
	"fmt"
	"strings"
	"time"
)

// Mode is a scanner's operational intent for subsequent barcode scans.
type Mode string

// Modes. A new scanner starts in ModeAdd and stays there until told otherwise.
const (
	ModeAdd    Mode = "ADD"
	ModeRemove Mode = "REMOVE"
	ModeLookup Mode = "LOOKUP"
)

// AllModes lists the valid modes in display order.
var AllModes = []Mode{ModeAdd, ModeRemove, ModeLookup}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAdd, ModeRemove, ModeLookup:
		return true
	}
	return false
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// State is the per-device record held by the Registry.
//
// A State value is a snapshot. The registry never mutates a stored State in
// place; updates go through CompareAndUpdate, which installs a modified copy
// with Version incremented.
type State struct {
	DeviceID          string    `json:"device_id"`
	Mode              Mode      `json:"mode"`
	CurrentLocationID *string   `json:"current_location_id"`
	AssociatedUIID    *string   `json:"associated_ui_id"`
	LastScanAt        time.Time `json:"last_scan_at"`
	Version           uint64    `json:"version"`
}

// newState returns the first-sight state for a device.
func newState(deviceID string, now time.Time) State {
	return State{
		DeviceID:   deviceID,
		Mode:       ModeAdd,
		LastScanAt: now,
	}
}

// Bound reports whether the device is associated with a UI instance.
func (s State) Bound() bool {
	return s.AssociatedUIID != nil
}

// UIInstanceID returns the associated UI id, or "" when unbound.
func (s State) UIInstanceID() string {
	if s.AssociatedUIID == nil {
		return ""
	}
	return *s.AssociatedUIID
}

// LocationID returns the current location id, or "" when none is set.
func (s State) LocationID() string {
	if s.CurrentLocationID == nil {
		return ""
	}
	return *s.CurrentLocationID
}

// clone returns a copy that shares no pointers with s.
func (s State) clone() State {
	c := s
	c.CurrentLocationID = copyString(s.CurrentLocationID)
	c.AssociatedUIID = copyString(s.AssociatedUIID)
	return c
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
