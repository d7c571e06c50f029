package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	// Inbound device webhooks. Payloads can carry snapshot images, so
	// the stricter admin body limit does not apply here.
	r.Group(func(r chi.Router) {
		r.Use(bodyLimit(maxWebhookBodySize))
		r.Post("/hooks/{brand}", s.handleWebhook)
	})

	// Admin API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bodyLimit(maxRequestBodySize))

		r.Get("/health", s.handleHealth)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Get("/status", s.handleDeviceStatus)
				r.Post("/sync", s.handleSyncDevice)
				r.Post("/relay", s.handleTriggerRelay)
			})
		})

		// Credential endpoints
		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", s.handleListCredentials)
			r.Post("/", s.handleCreateCredential)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCredential)
				r.Delete("/", s.handleRevokeCredential)
				r.Put("/denylist", s.handleSetDenylist)
			})
		})

		// Event log endpoints
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleQueryEvents)
			r.Get("/{id}", s.handleGetEvent)
		})

		// Fleet-wide credential sync
		r.Post("/sync", s.handleSyncAll)

		// WebSocket live event feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.registry.Count(),
	})
}
