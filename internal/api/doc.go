// Package api implements the HTTP API and WebSocket endpoint for Stocky's
// scanner coordination core.
//
// This package provides:
//   - POST /api/v1/scanner/scan, the inbound scan submission
//   - scanner state, association and audit endpoints for admins
//   - the UI association QR payload
//   - the WebSocket endpoint through which UI instances receive pushes
//   - middleware (request ID, tracing, logging, recovery, CORS, body limit)
//
// # Device identity
//
// Scanners identify themselves with the X-API-Key header. The key is
// validated upstream; this package only requires that it is present and
// uses it as the device id.
//
// # Push delivery
//
// Each WebSocket connection is registered with the connection manager
// under its ui_instance_id. Pushes are queued on a bounded per-connection
// buffer and written by a dedicated goroutine, so a slow UI never blocks a
// scan.
package api
