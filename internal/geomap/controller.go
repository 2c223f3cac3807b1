package geomap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/internal/metrics"
	"dashguard/pkg/logger"
)

// State is the lifecycle state of a Controller
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateDisposed      State = "disposed"
)

// Config holds the map defaults a Controller starts from
type Config struct {
	Basemaps      map[models.Basemap]models.TileLayer
	Basemap       models.Basemap
	Viewport      models.Viewport
	AttachTimeout time.Duration
}

// DefaultConfig returns the OpenStreetMap/Esri basemaps over a world viewport
func DefaultConfig() Config {
	return Config{
		Basemaps: map[models.Basemap]models.TileLayer{
			models.BasemapStandard: {
				URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
				Attribution: "&copy; OpenStreetMap contributors",
			},
			models.BasemapSatellite: {
				URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
				Attribution: "Tiles &copy; Esri",
			},
		},
		Basemap:       models.BasemapStandard,
		Viewport:      models.DefaultViewport(),
		AttachTimeout: 10 * time.Second,
	}
}

// View is a read-only snapshot of the map UI state
type View struct {
	State       State            `json:"state"`
	Basemap     models.Basemap   `json:"basemap"`
	Tiles       models.TileLayer `json:"tiles"`
	Fullscreen  bool             `json:"fullscreen"`
	Viewport    models.Viewport  `json:"viewport"`
	Filter      MapFilter        `json:"filter"`
	MarkerCount int              `json:"markerCount"`
	Rendered    int              `json:"rendered"`
}

// ReconcileResult counts the marker operations a reconciliation issued
type ReconcileResult struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Restyled int `json:"restyled"`
}

// Controller keeps the markers of one map surface in step with a visible set.
// It is safe for concurrent use.
type Controller struct {
	base    *logger.Logger
	logger  *logger.Logger
	cfg     Config
	surface Surface

	mu         sync.Mutex
	state      State
	attaching  bool
	layer      MarkerLayer
	rendered   map[string]models.Marker
	visible    []models.Threat
	basemap    models.Basemap
	fullscreen bool
	viewport   models.Viewport
	filter     MapFilter
}

// NewController creates an uninitialized controller for surface
func NewController(surface Surface, cfg Config, log *logger.Logger) *Controller {
	if cfg.Basemaps == nil {
		cfg.Basemaps = DefaultConfig().Basemaps
	}
	if !cfg.Basemap.IsValid() {
		cfg.Basemap = models.BasemapStandard
	}
	if cfg.Viewport.MaxZoom == 0 {
		cfg.Viewport = models.DefaultViewport()
	}

	return &Controller{
		base:     log,
		logger:   log.WithComponent("geomap"),
		cfg:      cfg,
		surface:  surface,
		state:    StateUninitialized,
		rendered: make(map[string]models.Marker),
		visible:  []models.Threat{},
		basemap:  cfg.Basemap,
		viewport: cfg.Viewport,
	}
}

// Init attaches the surface and draws the current visible set.
// Calls while an attach is in flight or once Ready are no-ops. A failed attach
// leaves the controller Uninitialized so Init can be retried. If the controller
// is disposed while the attach is in flight, whatever was built is released
// and Init returns nil.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateDisposed:
		c.mu.Unlock()
		return ErrDisposed
	case c.state == StateReady || c.attaching:
		c.mu.Unlock()
		return nil
	case c.surface == nil:
		c.mu.Unlock()
		return fmt.Errorf("%w: no surface bound", ErrSurfaceUnavailable)
	}
	c.attaching = true
	tiles := c.cfg.Basemaps[c.basemap]
	viewport := c.viewport
	c.mu.Unlock()

	if c.cfg.AttachTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttachTimeout)
		defer cancel()
	}

	layer, err := c.surface.Attach(ctx, tiles, viewport)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attaching = false

	if c.state == StateDisposed {
		if relErr := c.surface.Release(); relErr != nil {
			c.logger.Debug().Err(relErr).Msg("release after dispose during attach")
		}
		c.logger.Debug().Msg("attach completed after dispose, discarded")
		return nil
	}

	if err != nil {
		metrics.MapInitFailures.Inc()
		if relErr := c.surface.Release(); relErr != nil {
			c.logger.Debug().Err(relErr).Msg("release after failed attach")
		}
		c.logger.Warn().Err(err).Msg("map surface attach failed")
		return fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}

	c.layer = layer
	c.state = StateReady
	metrics.MapTransitions.WithLabelValues(string(StateReady)).Inc()

	res := c.reconcileLocked()
	c.logger.Info().
		Str("basemap", string(c.basemap)).
		Int("markers", res.Added).
		Msg("map ready")
	return nil
}

// Dispose releases the marker layer and the surface. It is idempotent.
func (c *Controller) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return nil
	}
	wasReady := c.state == StateReady
	c.state = StateDisposed
	c.layer = nil
	c.rendered = make(map[string]models.Marker)
	metrics.MapTransitions.WithLabelValues(string(StateDisposed)).Inc()

	// An in-flight attach releases on completion
	if !wasReady {
		return nil
	}
	if err := c.surface.Release(); err != nil {
		return fmt.Errorf("failed to release map surface: %w", err)
	}
	c.logger.Debug().Msg("map disposed")
	return nil
}

// Handoff disposes c and returns an uninitialized controller bound to surface
// that starts from c's basemap, fullscreen flag, viewport, filter and visible set.
// A nil surface yields a headless controller whose Init fails until replaced.
func (c *Controller) Handoff(surface Surface) *Controller {
	c.mu.Lock()
	cfg := c.cfg
	cfg.Basemap = c.basemap
	cfg.Viewport = c.viewport
	fullscreen := c.fullscreen
	filter := c.filter.clone()
	visible := models.CloneThreats(c.visible)
	c.mu.Unlock()

	if err := c.Dispose(); err != nil {
		c.logger.Warn().Err(err).Msg("dispose during handoff")
	}

	next := NewController(surface, cfg, c.base)
	next.fullscreen = fullscreen
	next.filter = filter
	next.visible = visible
	return next
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetVisible replaces the visible set and reconciles when Ready.
// Before Ready the set is kept and drawn on Init. After Dispose it is ignored.
func (c *Controller) SetVisible(threats []models.Threat) ReconcileResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return ReconcileResult{}
	}
	c.visible = models.CloneThreats(threats)
	if c.state != StateReady {
		return ReconcileResult{}
	}
	return c.reconcileLocked()
}

// Observer adapts the controller to FilterEngine change notifications
func (c *Controller) Observer() services.Observer {
	return func(change services.Change) {
		if change.Kind.VisibleChanged() {
			c.SetVisible(change.Visible)
		}
	}
}

// SetBasemap swaps the tile layer only; markers are left untouched
func (c *Controller) SetBasemap(b models.Basemap) error {
	tiles, ok := c.cfg.Basemaps[b]
	if !b.IsValid() || !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBasemap, b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return ErrDisposed
	}
	if c.basemap == b {
		return nil
	}
	c.basemap = b
	if c.state != StateReady {
		return nil
	}
	if err := c.surface.SetBasemap(tiles); err != nil {
		return fmt.Errorf("failed to set basemap: %w", err)
	}
	c.reconcileLocked()
	return nil
}

// SetFullscreen records the fullscreen toggle
func (c *Controller) SetFullscreen(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return ErrDisposed
	}
	c.fullscreen = on
	return nil
}

// SetViewport moves the map. Coordinates and zoom are clamped to the
// configured bounds; the applied viewport is returned.
func (c *Controller) SetViewport(vp models.Viewport) (models.Viewport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return models.Viewport{}, ErrDisposed
	}

	applied := models.Viewport{
		Latitude:  clamp(vp.Latitude, -90, 90),
		Longitude: clamp(vp.Longitude, -180, 180),
		Zoom:      vp.Zoom,
		MinZoom:   c.cfg.Viewport.MinZoom,
		MaxZoom:   c.cfg.Viewport.MaxZoom,
	}
	if applied.Zoom < applied.MinZoom {
		applied.Zoom = applied.MinZoom
	}
	if applied.Zoom > applied.MaxZoom {
		applied.Zoom = applied.MaxZoom
	}
	c.viewport = applied

	if c.state == StateReady {
		if err := c.surface.SetViewport(applied); err != nil {
			return applied, fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	return applied, nil
}

// SetFilter replaces the map-local filter and reconciles when Ready
func (c *Controller) SetFilter(f MapFilter) (ReconcileResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisposed {
		return ReconcileResult{}, ErrDisposed
	}
	c.filter = f.clone()
	if c.state != StateReady {
		return ReconcileResult{}, nil
	}
	return c.reconcileLocked(), nil
}

// View returns the current map UI state
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		State:       c.state,
		Basemap:     c.basemap,
		Tiles:       c.cfg.Basemaps[c.basemap],
		Fullscreen:  c.fullscreen,
		Viewport:    c.viewport,
		Filter:      c.filter.clone(),
		MarkerCount: len(c.targetLocked()),
		Rendered:    len(c.rendered),
	}
}

// Markers returns the target markers in visible-set order, whether or not the
// surface is attached
func (c *Controller) Markers() []models.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetLocked()
}

// CountryBreakdown counts mapped threats per country, highest first, truncated to n when n > 0
func (c *Controller) CountryBreakdown(n int) []models.CategoryCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	mapped := make([]models.Threat, 0, len(c.visible))
	for i := range c.visible {
		if c.mappable(&c.visible[i]) {
			mapped = append(mapped, c.visible[i])
		}
	}
	return services.TopCountries(mapped, n)
}

func (c *Controller) mappable(t *models.Threat) bool {
	return t.HasCoordinates() && c.filter.Matches(t)
}

// targetLocked must be called with mu held
func (c *Controller) targetLocked() []models.Marker {
	out := make([]models.Marker, 0, len(c.visible))
	seen := make(map[string]struct{}, len(c.visible))
	for i := range c.visible {
		t := &c.visible[i]
		if !c.filter.Matches(t) {
			continue
		}
		m, ok := MarkerFor(t)
		if !ok {
			continue
		}
		if _, dup := seen[m.ThreatID]; dup {
			continue
		}
		seen[m.ThreatID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// reconcileLocked diffs the target set against the rendered markers.
// It must be called with mu held and the controller Ready.
func (c *Controller) reconcileLocked() ReconcileResult {
	var res ReconcileResult
	target := c.targetLocked()

	keep := make(map[string]struct{}, len(target))
	for _, m := range target {
		keep[m.ThreatID] = struct{}{}
	}

	stale := make([]string, 0)
	for id := range c.rendered {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		if c.remove(id) {
			res.Removed++
		}
	}

	for _, m := range target {
		current, ok := c.rendered[m.ThreatID]
		switch {
		case !ok:
			if c.add(m) {
				res.Added++
			}
		case current.Latitude != m.Latitude || current.Longitude != m.Longitude:
			// Markers cannot move in place
			if c.remove(m.ThreatID) {
				res.Removed++
				if c.add(m) {
					res.Added++
				}
			}
		case current.Style != m.Style || current.Popup != m.Popup:
			if err := c.layer.RestyleMarker(m); err != nil {
				c.logger.Warn().Err(err).Str("threat_id", m.ThreatID).Msg("failed to restyle marker")
				continue
			}
			c.rendered[m.ThreatID] = m
			metrics.MarkerOperations.WithLabelValues("restyle").Inc()
			res.Restyled++
		}
	}

	if res.Added+res.Removed+res.Restyled > 0 {
		c.logger.Debug().
			Int("added", res.Added).
			Int("removed", res.Removed).
			Int("restyled", res.Restyled).
			Int("rendered", len(c.rendered)).
			Msg("markers reconciled")
	}
	return res
}

func (c *Controller) add(m models.Marker) bool {
	if err := c.layer.AddMarker(m); err != nil {
		c.logger.Warn().Err(err).Str("threat_id", m.ThreatID).Msg("failed to add marker")
		return false
	}
	c.rendered[m.ThreatID] = m
	metrics.MarkerOperations.WithLabelValues("add").Inc()
	return true
}

func (c *Controller) remove(id string) bool {
	if err := c.layer.RemoveMarker(id); err != nil {
		c.logger.Warn().Err(err).Str("threat_id", id).Msg("failed to remove marker")
		return false
	}
	delete(c.rendered, id)
	metrics.MarkerOperations.WithLabelValues("remove").Inc()
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
