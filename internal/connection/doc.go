// Package connection tracks live UI sessions and delivers push messages to
// them.
//
// Each UI instance id maps to at most one Sender. Registering a second
// sender under the same id supersedes the first, which the Manager closes.
// Send is fire-and-forget: it classifies the outcome as Delivered,
// NoSuchConnection or SendFailed and never blocks on the transport.
package connection
