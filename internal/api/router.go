package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/scanner", func(r chi.Router) {
			r.With(s.deviceKeyMiddleware).Post("/scan", s.handleScan)
			r.Post("/lookup/{upc}", s.handleLookup)

			r.Get("/status/{device_id}", s.handleScannerStatus)
			r.Get("/states", s.handleListStates)
			r.Delete("/states/{device_id}", s.handleDeleteState)
			r.Delete("/associate/{device_id}", s.handleDisassociate)

			r.Get("/connections", s.handleListConnections)
			r.Get("/events", s.handleListEvents)
		})

		r.Get("/ui/{ui_instance_id}/association", s.handleAssociationCode)
	})

	return r
}

// handleHealth returns the server health status. A failing dependency
// degrades the status but still answers 200; the process itself is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	status := "ok"
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
