package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Decode parses a raw scan.
//
// Surrounding whitespace (scanners typically append CR or LF) is trimmed.
// Input that parses as a JSON object with a "command" key is a Command;
// its "payload" becomes the argument. Anything else is a Barcode.
func Decode(raw string) (Payload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &DecodeError{Raw: raw, Err: ErrEmptyScan}
	}

	if trimmed[0] != '{' {
		return Barcode{Code: trimmed}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		// Not JSON after all; treat as an opaque code.
		return Barcode{Code: trimmed}, nil
	}
	rawName, ok := obj["command"]
	if !ok {
		return Barcode{Code: trimmed}, nil
	}

	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, &DecodeError{Raw: raw, Command: string(rawName), Err: ErrMalformedCommand}
	}

	cmd := Command{Name: CommandName(strings.TrimSpace(name))}
	if !cmd.Name.Known() {
		return nil, &DecodeError{Raw: raw, Command: name, Err: ErrUnknownCommand}
	}

	cmd.Argument = argument(obj["payload"])
	if knownCommands[cmd.Name].needsArgument && cmd.Argument == "" {
		return nil, &DecodeError{Raw: raw, Command: name, Err: ErrMissingArgument}
	}

	if cmd.Name == CommandSetMode {
		m, err := scanner.ParseMode(cmd.Argument)
		if err != nil {
			return nil, &DecodeError{Raw: raw, Command: name, Err: ErrInvalidMode}
		}
		cmd.Argument = string(m)
	}

	return cmd, nil
}

// argument returns a string payload as-is and any other JSON value as its
// compact text. A missing or null payload is "".
func argument(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
