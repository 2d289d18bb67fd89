package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stocky-app/stocky-core/internal/coordinator"
	"github.com/stocky-app/stocky-core/internal/protocol"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeUnrecognized   = "unrecognized_scan"
	ErrCodeUpstream       = "upstream_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeScanError maps a coordinator error to its HTTP response.
func writeScanError(w http.ResponseWriter, err error) {
	var decodeErr *protocol.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnrecognized, decodeErr.Error())
	case errors.Is(err, scanner.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "scanner state changed concurrently, resubmit the scan")
	case errors.Is(err, scanner.ErrNotFound):
		writeNotFound(w, "scanner not found")
	case errors.Is(err, coordinator.ErrNotAssociated):
		writeNotFound(w, "scanner is not currently associated")
	case errors.Is(err, scanner.ErrInvalidDeviceID):
		writeUnauthorized(w, "X-API-Key header is required")
	case errors.Is(err, coordinator.ErrResolution):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "item lookup failed")
	case errors.Is(err, coordinator.ErrNoResolver):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "item lookup not configured")
	default:
		writeInternalError(w, "internal server error")
	}
}
