// Package resolver turns a scanned barcode into an item lookup result.
//
// Two backends are provided:
//
//   - SQLiteResolver reads the local items and skus tables.
//   - HTTPResolver asks a remote item service.
//
// Both return a Resolution whose SuggestedActions tell the UI what the
// scanner's current mode implies (increment, decrement or display).
// An unknown code is not an error; it is a Resolution with Found false.
package resolver
