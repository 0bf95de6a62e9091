package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds the database ping in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Automation server and variable catalog
		r.Get("/server", s.handleGetServer)
		r.Put("/server", s.handlePutServer)
		r.Get("/variables", s.handleListVariables)
		r.Put("/variables", s.handleReplaceVariables)
		r.Get("/variables/search", s.handleSearchVariables)

		// Selections
		r.Get("/tracking", s.handleGetTracking)
		r.Put("/tracking", s.handlePutTracking)
		r.Get("/tracking/variables", s.handleTrackedVariables)
		r.Get("/selection", s.handleGetSelection)
		r.Put("/selection", s.handlePutSelection)

		r.Route("/designs", func(r chi.Router) {
			r.Get("/", s.handleListDesigns)
			r.Post("/", s.handleCreateDesign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDesign)
				r.Put("/", s.handleUpdateDesign)
				r.Delete("/", s.handleDeleteDesign)
				r.Put("/chart", s.handleSaveChart)
				r.Post("/execute", s.handleExecute)
				r.Post("/cancel", s.handleCancel)
				r.Get("/status", s.handleDesignStatus)
				r.Get("/ws", s.handleDesignWebSocket)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)

			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/samples", s.handleRunSamples)
				r.Get("/ws", s.handleRunWebSocket)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
// A failing database makes the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	checks := map[string]string{}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
