package protocol

// CommandName identifies a scanner command.
type CommandName string

// Recognised commands.
const (
	CommandAssociateUI    CommandName = "associate_ui"
	CommandShowView       CommandName = "show_view"
	CommandDisassociateUI CommandName = "disassociate_ui"
	CommandSetMode        CommandName = "set_mode"
	CommandSetLocation    CommandName = "set_location"
	CommandClearLocation  CommandName = "clear_location"
)

var knownCommands = map[CommandName]struct {
	needsArgument bool
}{
	CommandAssociateUI:    {needsArgument: true},
	CommandShowView:       {needsArgument: true},
	CommandDisassociateUI: {},
	CommandSetMode:        {needsArgument: true},
	CommandSetLocation:    {needsArgument: true},
	CommandClearLocation:  {},
}

// Known reports whether n is a recognised command.
func (n CommandName) Known() bool {
	_, ok := knownCommands[n]
	return ok
}

// Payload is a decoded scan: either a Barcode or a Command.
type Payload interface {
	isPayload()
}

// Barcode is a literal scanned code. No symbology validation is applied.
type Barcode struct {
	Code string
}

// Command is a structured instruction encoded in a scanned code.
type Command struct {
	Name     CommandName
	Argument string
}

func (Barcode) isPayload() {}
func (Command) isPayload() {}
