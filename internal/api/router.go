package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/refoss-bridge/internal/bridge"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/entities", s.handleListEntities)
				r.Get("/triggers", s.handleListTriggers)
				r.Get("/events", s.handleListEvents)
				r.Post("/rpc", s.handleCallRPC)
			})
		})

		r.Post("/triggers/validate", s.handleValidateTrigger)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the bridge health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, reason := bridge.HealthHealthy, ""
	if s.health != nil {
		status, reason = s.health.Status()
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
		"devices": s.bridge.Stats(),
	}
	if reason != "" {
		body["reason"] = reason
	}
	writeJSON(w, http.StatusOK, body)
}
