package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"dashguard/internal/config"
	"dashguard/internal/dashboard"
	"dashguard/internal/domain/models"
	"dashguard/internal/geomap"
	"dashguard/internal/streaming"
	"dashguard/pkg/logger"
)

// MapHandler handles the threat map endpoints
type MapHandler struct {
	workspaces *dashboard.Manager
	cfg        config.MapConfig
	dashboard  config.DashboardConfig
	upgrader   *websocket.Upgrader
	validate   *validator.Validate
	logger     *logger.Logger
}

// NewMapHandler creates a new MapHandler
func NewMapHandler(m *dashboard.Manager, cfg config.MapConfig, dash config.DashboardConfig, log *logger.Logger) *MapHandler {
	return &MapHandler{
		workspaces: m,
		cfg:        cfg,
		dashboard:  dash,
		upgrader:   streaming.NewUpgrader(cfg.WebSocketOrigins),
		validate:   validator.New(),
		logger:     log.WithComponent("map"),
	}
}

// Get handles GET /api/v1/map
func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	h.respondView(w, ws.Map())
}

// Markers handles GET /api/v1/map/markers
func (h *MapHandler) Markers(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	markers := ws.Map().Markers()
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  markers,
		"total": len(markers),
	})
}

// Countries handles GET /api/v1/map/countries?top=
func (h *MapHandler) Countries(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	top, err := intParam(r.URL.Query().Get("top"), h.dashboard.DetailTopCountries)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid top")
		return
	}
	breakdown := ws.Map().CountryBreakdown(top)
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  breakdown,
		"total": len(breakdown),
	})
}

// GeoJSON handles GET /api/v1/map/geojson
func (h *MapHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	fc := geomap.FeatureCollection(ws.Map().Markers())
	data, err := fc.MarshalJSON()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode geojson")
		respondError(w, http.StatusInternalServerError, "failed to encode geojson")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type basemapRequest struct {
	Basemap models.Basemap `json:"basemap"`
}

// SetBasemap handles PUT /api/v1/map/basemap
func (h *MapHandler) SetBasemap(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	var req basemapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl := ws.Map()
	if err := ctrl.SetBasemap(req.Basemap); err != nil {
		h.respondMapError(w, err)
		return
	}
	h.respondView(w, ctrl)
}

type fullscreenRequest struct {
	Fullscreen bool `json:"fullscreen"`
}

// SetFullscreen handles PUT /api/v1/map/fullscreen
func (h *MapHandler) SetFullscreen(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	var req fullscreenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl := ws.Map()
	if err := ctrl.SetFullscreen(req.Fullscreen); err != nil {
		h.respondMapError(w, err)
		return
	}
	h.respondView(w, ctrl)
}

type viewportRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      int     `json:"zoom"`
}

// SetViewport handles PUT /api/v1/map/viewport. Out of range values are clamped.
func (h *MapHandler) SetViewport(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	var req viewportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctrl := ws.Map()
	if _, err := ctrl.SetViewport(models.Viewport{Latitude: req.Latitude, Longitude: req.Longitude, Zoom: req.Zoom}); err != nil {
		h.respondMapError(w, err)
		return
	}
	h.respondView(w, ctrl)
}

// SetFilter handles PUT /api/v1/map/filter
func (h *MapHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	var f geomap.MapFilter
	if err := decodeJSON(w, r, &f); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(f); err != nil {
		respondError(w, http.StatusBadRequest, "minConfidence must be between 0 and 100")
		return
	}

	ctrl := ws.Map()
	if _, err := ctrl.SetFilter(f); err != nil {
		h.respondMapError(w, err)
		return
	}
	h.respondView(w, ctrl)
}

// Surface handles GET /api/v1/map/ws. The connection becomes the workspace's
// map surface until it closes; a newer connection replaces an older one.
func (h *MapHandler) Surface(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to upgrade map connection")
		return
	}

	surface := streaming.NewMapSurface(conn, h.cfg.WebSocketBuffer, h.logger)
	ctrl := ws.OpenMap(surface)

	// The request context ends with the handler; the surface outlives neither.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ctrl.Init(ctx); err != nil && !errors.Is(err, geomap.ErrDisposed) {
			h.logger.Warn().Err(err).Str("workspace_id", ws.ID).Msg("map init failed")
		}
	}()

	surface.Run(ctx)
	ws.CloseMap(ctrl)
	h.logger.Debug().Str("workspace_id", ws.ID).Msg("map surface disconnected")
}

func (h *MapHandler) respondView(w http.ResponseWriter, ctrl *geomap.Controller) {
	respondJSON(w, http.StatusOK, map[string]any{"data": ctrl.View()})
}

func (h *MapHandler) respondMapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geomap.ErrInvalidBasemap):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, geomap.ErrDisposed):
		respondError(w, http.StatusConflict, "map is closing, retry")
	default:
		h.logger.Error().Err(err).Msg("map update failed")
		respondError(w, http.StatusBadGateway, "map surface update failed")
	}
}
