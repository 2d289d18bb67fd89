// Package audit stores and queries the scanner event trail in the
// audit_logs table.
//
// Every accepted scan, rejected scan, state change, delivery attempt and UI
// connection change becomes one row, written by the events package's audit
// sink and read back by GET /api/v1/scanner/events.
package audit
