// Package protocol decodes raw scanner input.
//
// A scan is either a literal barcode or a JSON command object such as
//
//	{"command":"associate_ui","payload":"ui-7"}
//
// Decode is pure: it reads nothing but its argument and never touches
// scanner state. Barcodes can be further classified with Markers into
// inventory codes and location or mode markers.
//
// PushMessage is the JSON document pushed to a UI instance when a scanner
// forwards a command to it.
package protocol
