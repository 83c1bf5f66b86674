package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component probe in /health.
const healthCheckTimeout = 2 * time.Second

// maxSpoolListing caps the limit query parameter of /spool.
const maxSpoolListing = 100

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/spool", s.handleListSpool)
	})

	return r
}

// handleHealth returns "ok" when every registered component answers its
// probe and "degraded" with 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	resp := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(components) > 0 {
		resp["components"] = components
	}
	writeJSON(w, code, resp)
}

// handleStatus returns the relay counters.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Stats(r.Context()))
}

// handleListSpool lists the oldest spooled batches without their payloads.
func (s *Server) handleListSpool(w http.ResponseWriter, r *http.Request) {
	if s.spool == nil {
		writeNotFound(w, "spool is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSpoolListing)
	}

	batches, err := s.spool.Oldest(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing spool", "error", err)
		writeInternalError(w, "failed to read spool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"count":   len(batches),
	})
}
