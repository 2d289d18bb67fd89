package protocol

import "encoding/json"

// PushMessage is the JSON document pushed to a UI instance.
type PushMessage struct {
	Action  string `json:"action"`
	Payload string `json:"payload"`
}

// NewPushMessage converts a forwarded command into its UI message.
func NewPushMessage(cmd Command) PushMessage {
	return PushMessage{Action: string(cmd.Name), Payload: cmd.Argument}
}

// AssociationCode returns the command a UI renders as a QR code so that a
// scanner can bind to it.
func AssociationCode(uiInstanceID string) Command {
	return Command{Name: CommandAssociateUI, Argument: uiInstanceID}
}

// MarshalJSON encodes a Command in the form Decode accepts.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command CommandName `json:"command"`
		Payload string      `json:"payload,omitempty"`
	}{c.Name, c.Argument})
}
