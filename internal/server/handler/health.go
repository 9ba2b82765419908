package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports liveness plus enough identity (service, mode, uptime)
// for an operator to tell which of several bolindexer processes answered.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler for the given run mode.
func NewHealthHandler(mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		logger:    logHandler(logger, "health"),
	}
}

// HealthCheck answers load balancer and operator probes.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "bolindexer",
		"mode":           h.mode,
		"uptime_seconds": uptime,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
