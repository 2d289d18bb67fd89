package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocky-app/stocky-core/internal/protocol"
)

// handleAssociationCode returns the payload a UI renders as a QR code.
// Scanning it binds the scanner to that UI instance.
func (s *Server) handleAssociationCode(w http.ResponseWriter, r *http.Request) {
	uiID := chi.URLParam(r, "ui_instance_id")
	if uiID == "" {
		writeBadRequest(w, "ui_instance_id is required")
		return
	}
	writeJSON(w, http.StatusOK, protocol.AssociationCode(uiID))
}
