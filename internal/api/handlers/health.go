package handlers

import (
	"context"
	"net/http"
	"time"

	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version    string
	cache      *cache.RedisCache
	aggregator *services.Aggregator
	logger     *logger.Logger
	startTime  time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string, c *cache.RedisCache, agg *services.Aggregator, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		version:    version,
		cache:      c,
		aggregator: agg,
		logger:     log.WithComponent("health"),
		startTime:  time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - checks the feed and Redis
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK
	overallStatus := "ready"

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overallStatus = "not ready"
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	switch {
	case h.aggregator == nil:
		checks["feed"] = "not configured"
	case h.aggregator.LastResult() == nil:
		checks["feed"] = "not loaded"
		status = http.StatusServiceUnavailable
		overallStatus = "not ready"
	default:
		checks["feed"] = "healthy"
	}

	respondJSON(w, status, HealthResponse{
		Status:    overallStatus,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
