package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// ScanRequest is the body of POST /scanner/scan. UPC is accepted as an
// alias of Raw for older scanner firmware.
type ScanRequest struct {
	Raw string `json:"raw"`
	UPC string `json:"upc,omitempty"`
}

// StatusResponse describes one scanner.
type StatusResponse struct {
	scanner.State
	UIConnected bool `json:"ui_connected"`
}

// StatesResponse lists every known scanner.
type StatesResponse struct {
	States []scanner.State `json:"states"`
	Stats  scanner.Stats   `json:"stats"`
}

// handleScan accepts one raw scan from the device named by X-API-Key.
//
// All accepted outcomes answer 200 with the scan result; undecodable
// scans answer 422, exhausted version conflicts 409 and resolver failures
// 502.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	raw := req.Raw
	if raw == "" {
		raw = req.UPC
	}

	deviceID := deviceIDFromContext(r.Context())
	res, err := s.coord.HandleScan(r.Context(), deviceID, raw)
	if err != nil {
		if !errors.Is(err, scanner.ErrConflict) {
			s.logger.Debug("scan failed", "device_id", logging.RedactKey(deviceID), "error", err)
		} else {
			s.logger.Warn("scan abandoned after version conflicts", "device_id", logging.RedactKey(deviceID))
		}
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleLookup resolves a UPC in LOOKUP mode without a scanner.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	upc := chi.URLParam(r, "upc")
	res, err := s.coord.Lookup(r.Context(), upc)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScannerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.registry.Get(r.Context(), chi.URLParam(r, "device_id"))
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		State:       st,
		UIConnected: st.Bound() && s.connections.Connected(st.UIInstanceID()),
	})
}

func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatesResponse{
		States: s.registry.List(r.Context()),
		Stats:  s.registry.Stats(r.Context()),
	})
}

// handleDeleteState forgets a scanner. Its next scan starts from first sight.
func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	if err := s.registry.Delete(r.Context(), deviceID); err != nil {
		writeScanError(w, err)
		return
	}
	s.logger.Info("scanner state deleted by admin", "device_id", logging.RedactKey(deviceID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisassociate(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Disassociate(r.Context(), chi.URLParam(r, "device_id"))
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": s.connections.Connections(),
		"count":       s.connections.Count(),
	})
}
