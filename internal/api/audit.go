package api

import (
	"net/http"
	"strconv"

	"github.com/stocky-app/stocky-core/internal/audit"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
)

// handleListEvents returns paginated scanner audit entries.
//
// Query parameters:
//   - device_id: filter by scanner, as an API key or its logging.DeviceRef
//   - type: filter by event type (scan.accepted, state.changed, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("type"),
	}
	if v := q.Get("device_id"); v != "" {
		filter.DeviceID = logging.NormalizeDeviceRef(v)
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
