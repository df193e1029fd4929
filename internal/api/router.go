package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/doorbell-bridge/internal/events"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Get("/doorbells", s.handleListDoorbells)
		r.Get("/doorbells/last-ring", s.handleLastRing)

		r.Get("/events", s.handleRecentEvents)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth checks every registered component.
// Returns 200 when all are healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleListDoorbells returns every configured doorbell and its state.
func (s *Server) handleListDoorbells(w http.ResponseWriter, _ *http.Request) {
	doorbells := s.doorbells.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"doorbells":  doorbells,
		"total":      len(doorbells),
		"subscribed": s.doorbells.SubscribedCount(),
	})
}

// handleLastRing returns the last stored ring for ?unique_id=.
func (s *Server) handleLastRing(w http.ResponseWriter, r *http.Request) {
	if s.lastRing == nil {
		writeUnavailable(w, "last-ring store is not enabled")
		return
	}
	id := r.URL.Query().Get("unique_id")
	if id == "" {
		writeBadRequest(w, "unique_id query parameter is required")
		return
	}

	payload, err := s.lastRing.LastRing(r.Context(), id)
	if err != nil {
		s.logger.Error("reading last ring failed", "unique_id", id, "error", err)
		writeInternalError(w, "failed to read last ring")
		return
	}
	if payload == nil {
		writeNotFound(w, "no ring recorded for this doorbell")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck // Best-effort write to response
}

// handleRecentEvents returns journaled ring events, newest first.
//
// Query parameters: limit (1..1000, default 50), unique_id (optional filter).
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "event journal is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		evs []events.Event
		err error
	)
	if id := r.URL.Query().Get("unique_id"); id != "" {
		evs, err = s.journal.RecentFor(r.Context(), id, limit)
	} else {
		evs, err = s.journal.Recent(r.Context(), limit)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("reading event journal failed", "error", err)
		writeInternalError(w, "failed to read events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": evs,
		"count":  len(evs),
	})
}
