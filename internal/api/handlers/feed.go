package handlers

import (
	"errors"
	"net/http"

	"dashguard/internal/dashboard"
	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

// FeedHandler handles feed status and reload endpoints
type FeedHandler struct {
	aggregator *services.Aggregator
	workspaces *dashboard.Manager
	cache      *cache.RedisCache
	logger     *logger.Logger
}

// NewFeedHandler creates a new FeedHandler. c may be nil.
func NewFeedHandler(agg *services.Aggregator, m *dashboard.Manager, c *cache.RedisCache, log *logger.Logger) *FeedHandler {
	return &FeedHandler{
		aggregator: agg,
		workspaces: m,
		cache:      c,
		logger:     log.WithComponent("feed"),
	}
}

// Status handles GET /api/v1/feed
// With Redis it also reports the newest version loaded by any instance;
// stale is set when another instance has loaded a newer feed.
func (h *FeedHandler) Status(w http.ResponseWriter, r *http.Request) {
	version := h.aggregator.Version()
	resp := map[string]any{
		"data":       h.aggregator.LastResult(),
		"version":    version,
		"running":    h.aggregator.IsRunning(),
		"workspaces": h.workspaces.Len(),
	}

	if h.cache != nil {
		shared, err := h.cache.GetFeedVersion(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to read shared feed version")
		} else {
			resp["cluster_version"] = shared
			resp["stale"] = version < shared
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Reload handles POST /api/v1/feed/reload
// Every open workspace receives the new set; a failed load keeps the old one.
func (h *FeedHandler) Reload(w http.ResponseWriter, r *http.Request) {
	result, err := h.aggregator.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrLoadInProgress) {
			respondError(w, http.StatusConflict, "feed load already in progress")
			return
		}
		h.logger.Error().Err(err).Msg("feed reload failed")
		respondError(w, http.StatusBadGateway, "feed load failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"data": result})
}
