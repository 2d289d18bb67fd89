// Package coordinator runs the per-scan workflow.
//
// For each raw scan from a device the Coordinator decodes the payload,
// applies the resulting state transition to the scanner registry with a
// bounded compare-and-swap retry, and then either resolves the barcode
// through an ItemResolver or forwards a command to the device's bound UI
// through the connection manager.
//
// A device is either Unbound or Bound to one UI instance. Only
// associate_ui binds it; only disassociate_ui or an admin Disassociate
// unbinds it. Binding never times out.
//
// Every accepted scan, committed transition and delivery attempt is handed
// to the event emitter before HandleScan returns.
package coordinator
