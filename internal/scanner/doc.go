// Package scanner holds the device registry: one State per physical
// barcode scanner, keyed by the scanner's API key.
//
// A State records the scanner's Mode (ADD, REMOVE, LOOKUP), its current
// location, the UI instance it is associated with, when it last scanned,
// and a Version used for optimistic concurrency.
//
// # Updates
//
// States are never modified in place. Callers read a snapshot, then call
// CompareAndUpdate with the snapshot's version and a Mutator:
//
//	st, _ := reg.GetOrCreate(ctx, deviceID)
//	st, err := reg.CompareAndUpdate(ctx, deviceID, st.Version, scanner.SetLocation("pantry-1"))
//	if errors.Is(err, scanner.ErrConflict) {
//	    // another scan from this device won; re-read and retry
//	}
//
// # Lifecycle
//
// A State is created on the first scan from an unseen device and lives
// until an admin deletes it. Nothing expires: a scanner left in REMOVE mode
// stays in REMOVE mode.
//
// # Persistence
//
// With a Repository configured, every committed state is written through
// (version-guarded) and RefreshCache restores them at startup.
package scanner
