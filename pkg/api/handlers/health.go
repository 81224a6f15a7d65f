package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/pgstate/pkg/state/metadata"
)

// HealthCheckTimeout bounds the database probe so a slow server cannot
// block health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// StateStore is the part of the state service the health endpoints need.
type StateStore interface {
	// Ready returns nil once Init has run and the database answers.
	Ready(ctx context.Context) error

	// Config returns the active component configuration, or nil before Init.
	Config() *metadata.ComponentConfig
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the process running?
//   - Readiness probe: Has the sidecar initialized the component?
//   - Store health: Does PostgreSQL answer, and how fast?
type HealthHandler struct {
	store     StateStore
	startTime time.Time
}

// NewHealthHandler creates a new health handler. store may be nil, in which
// case readiness and store checks report unhealthy.
func NewHealthHandler(store StateStore) *HealthHandler {
	return &HealthHandler{
		store:     store,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health. It succeeds as long as the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "pgstate",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready. It returns 503 until the component
// has been initialized.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("state store not configured"))
		return
	}

	cfg := h.store.Config()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("state store not initialized"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(cfg.Redacted()))
}

// StoreHealth represents the health status of the backing database.
type StoreHealth struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Store handles GET /health/store - pings PostgreSQL.
//
// Returns 200 OK if the database answers within HealthCheckTimeout,
// 503 Service Unavailable otherwise.
func (h *HealthHandler) Store(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("state store not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.Ready(ctx)
	health := StoreHealth{
		Name:    "postgres",
		Type:    "state",
		Latency: time.Since(start).String(),
	}

	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(health))
		return
	}

	health.Status = "healthy"
	writeJSON(w, http.StatusOK, healthyResponse(health))
}
