package handlers

import (
	"encoding/json"
	"net/http"

	apimiddleware "dashguard/internal/api/middleware"
	"dashguard/internal/config"
	"dashguard/internal/dashboard"
	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/cache"
	"dashguard/internal/streaming"
	"dashguard/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Threats   *ThreatsHandler
	Filters   *FiltersHandler
	Stats     *StatsHandler
	Map       *MapHandler
	Feed      *FeedHandler
	Streaming *StreamingHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Config     config.Config
	Workspaces *dashboard.Manager
	Aggregator *services.Aggregator
	Cache      *cache.RedisCache
	EventBus   *streaming.EventBus
	WSHub      *streaming.WebSocketHub
	Logger     *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Config.App.Version, deps.Cache, deps.Aggregator, deps.Logger),
		Threats:   NewThreatsHandler(deps.Workspaces, deps.Logger),
		Filters:   NewFiltersHandler(deps.Workspaces, deps.Logger),
		Stats:     NewStatsHandler(deps.Workspaces, deps.Config.Dashboard, deps.Logger),
		Map:       NewMapHandler(deps.Workspaces, deps.Config.Map, deps.Config.Dashboard, deps.Logger),
		Feed:      NewFeedHandler(deps.Aggregator, deps.Workspaces, deps.Cache, deps.Logger),
		Streaming: NewStreamingHandler(deps.Workspaces, deps.WSHub, deps.EventBus, deps.Logger),
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// workspaceFor resolves the caller's workspace from the session placed in the
// request context by the session gate. It writes the error response itself.
func workspaceFor(m *dashboard.Manager, log *logger.Logger, w http.ResponseWriter, r *http.Request) (*dashboard.Workspace, bool) {
	session, ok := apimiddleware.GetSession(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing session")
		return nil, false
	}
	ws, err := m.Get(session)
	if err != nil {
		log.Error().Err(err).Msg("failed to open workspace")
		respondError(w, http.StatusInternalServerError, "failed to open workspace")
		return nil, false
	}
	return ws, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
