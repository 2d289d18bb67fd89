package coordinator

import (
	"github.com/stocky-app/stocky-core/internal/resolver"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Outcome classifies what a scan did.
type Outcome string

// Scan outcomes.
const (
	OutcomeItemResolution   Outcome = "item_resolution"
	OutcomeStateUpdated     Outcome = "state_updated"
	OutcomeAssociationAck   Outcome = "association_ack"
	OutcomeCommandDelivered Outcome = "command_delivered"
	OutcomeNoSuchConnection Outcome = "no_such_connection"
	OutcomeSendFailed       Outcome = "send_failed"
	OutcomeNotAssociated    Outcome = "not_associated"
)

// Result is returned by HandleScan for every accepted scan.
type Result struct {
	Outcome  Outcome       `json:"outcome"`
	DeviceID string        `json:"device_id"`
	State    scanner.State `json:"state"`

	// Resolution is set for OutcomeItemResolution.
	Resolution *resolver.Resolution `json:"item,omitempty"`

	// UIInstanceID is the UI bound by associate_ui or targeted by a
	// forwarded command.
	UIInstanceID string `json:"ui_instance_id,omitempty"`

	// Action is the forwarded command name for delivery outcomes.
	Action string `json:"action,omitempty"`
}
