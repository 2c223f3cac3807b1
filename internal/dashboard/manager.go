package dashboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"dashguard/internal/config"
	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/internal/geomap"
	"dashguard/internal/metrics"
	"dashguard/pkg/logger"
)

// Manager keeps one workspace per session token. The number of live
// workspaces is bounded; the least recently used one is closed on overflow.
type Manager struct {
	cfg       config.DashboardConfig
	mapCfg    geomap.Config
	stats     *services.StatsService
	publisher ChangePublisher
	logger    *logger.Logger

	mu         sync.Mutex
	workspaces *lru.Cache[string, *Workspace]
	threats    []models.Threat
	version    int64
}

var _ services.FeedSink = (*Manager)(nil)

// NewManager creates a workspace manager. publisher may be nil.
func NewManager(
	cfg config.DashboardConfig,
	mapCfg geomap.Config,
	stats *services.StatsService,
	publisher ChangePublisher,
	log *logger.Logger,
) (*Manager, error) {
	size := cfg.MaxWorkspaces
	if size <= 0 {
		size = 256
	}

	m := &Manager{
		cfg:       cfg,
		mapCfg:    mapCfg,
		stats:     stats,
		publisher: publisher,
		logger:    log.WithComponent("workspaces"),
		threats:   []models.Threat{},
	}

	cache, err := lru.NewWithEvict[string, *Workspace](size, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace cache: %w", err)
	}
	m.workspaces = cache
	return m, nil
}

// MapConfigFrom builds the map defaults from configuration
func MapConfigFrom(cfg config.MapConfig) geomap.Config {
	out := geomap.DefaultConfig()

	if cfg.StandardTiles != "" {
		out.Basemaps[models.BasemapStandard] = models.TileLayer{URL: cfg.StandardTiles, Attribution: cfg.StandardAttrib}
	}
	if cfg.SatelliteTiles != "" {
		out.Basemaps[models.BasemapSatellite] = models.TileLayer{URL: cfg.SatelliteTiles, Attribution: cfg.SatelliteAttrib}
	}
	if b := models.Basemap(cfg.DefaultBasemap); b.IsValid() {
		out.Basemap = b
	}
	if cfg.MaxZoom > 0 {
		out.Viewport = models.Viewport{
			Latitude:  cfg.CenterLatitude,
			Longitude: cfg.CenterLongitude,
			Zoom:      cfg.Zoom,
			MinZoom:   cfg.MinZoom,
			MaxZoom:   cfg.MaxZoom,
		}
	}
	if cfg.AttachTimeout > 0 {
		out.AttachTimeout = cfg.AttachTimeout
	}
	return out
}

// Get returns the workspace for session, creating it from the current feed on
// first use
func (m *Manager) Get(session models.Session) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces.Get(session.Token); ok {
		return ws, nil
	}

	ws, err := newWorkspace(uuid.New().String(), session.User, m.mapCfg, m.cfg.SortCacheSize, m.stats, m.publisher, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	ws.Load(m.threats)

	m.workspaces.Add(session.Token, ws)
	metrics.ActiveWorkspaces.Set(float64(m.workspaces.Len()))

	m.logger.Info().
		Str("workspace_id", ws.ID).
		Str("user_id", session.User.ID).
		Int("threats", len(m.threats)).
		Msg("workspace created")
	return ws, nil
}

// Lookup returns the workspace for token without creating one
func (m *Manager) Lookup(token string) (*Workspace, bool) {
	return m.workspaces.Get(token)
}

// Remove closes the workspace for token. It reports whether one existed.
func (m *Manager) Remove(token string) bool {
	removed := m.workspaces.Remove(token)
	metrics.ActiveWorkspaces.Set(float64(m.workspaces.Len()))
	return removed
}

// LoadAll implements services.FeedSink: new workspaces start from threats and
// every live workspace reloads them under its own criteria
func (m *Manager) LoadAll(threats []models.Threat, version int64) {
	m.mu.Lock()
	m.threats = models.CloneThreats(threats)
	m.version = version
	live := m.workspaces.Values()
	m.mu.Unlock()

	for _, ws := range live {
		ws.Load(threats)
	}

	m.logger.Info().
		Int("workspaces", len(live)).
		Int("threats", len(threats)).
		Int64("version", version).
		Msg("feed distributed")
}

// FeedVersion returns the version of the threats new workspaces start from
func (m *Manager) FeedVersion() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Len returns the number of live workspaces
func (m *Manager) Len() int {
	return m.workspaces.Len()
}

// Close closes every workspace
func (m *Manager) Close() {
	m.workspaces.Purge()
	metrics.ActiveWorkspaces.Set(0)
}

func (m *Manager) onEvict(_ string, ws *Workspace) {
	ws.Close()
	m.logger.Debug().Str("workspace_id", ws.ID).Msg("workspace evicted")
}
