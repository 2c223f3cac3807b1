package geomap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/pkg/logger"
)

type fakeLayer struct {
	mu       sync.Mutex
	markers  map[string]*models.Marker
	added    []string
	removed  []string
	restyled []string
}

func newFakeLayer() *fakeLayer {
	return &fakeLayer{markers: make(map[string]*models.Marker)}
}

func (l *fakeLayer) AddMarker(m models.Marker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers[m.ThreatID] = &m
	l.added = append(l.added, m.ThreatID)
	return nil
}

func (l *fakeLayer) RemoveMarker(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.markers, id)
	l.removed = append(l.removed, id)
	return nil
}

func (l *fakeLayer) RestyleMarker(m models.Marker) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing := l.markers[m.ThreatID]
	existing.Style = m.Style
	existing.Popup = m.Popup
	l.restyled = append(l.restyled, m.ThreatID)
	return nil
}

func (l *fakeLayer) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.added, l.removed, l.restyled = nil, nil, nil
}

type fakeSurface struct {
	mu        sync.Mutex
	layer     *fakeLayer
	failNext  int
	attaches  int
	releases  int
	basemaps  []models.TileLayer
	viewports []models.Viewport

	// when set, Attach signals started and waits on proceed
	started chan struct{}
	proceed chan struct{}
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{layer: newFakeLayer()}
}

func (s *fakeSurface) Attach(ctx context.Context, tiles models.TileLayer, vp models.Viewport) (MarkerLayer, error) {
	if s.started != nil {
		close(s.started)
		<-s.proceed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches++
	s.basemaps = append(s.basemaps, tiles)
	if s.failNext > 0 {
		s.failNext--
		return nil, errors.New("container not mounted")
	}
	return s.layer, nil
}

func (s *fakeSurface) SetBasemap(tiles models.TileLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.basemaps = append(s.basemaps, tiles)
	return nil
}

func (s *fakeSurface) SetViewport(vp models.Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewports = append(s.viewports, vp)
	return nil
}

func (s *fakeSurface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func geoThreat(id string, sev models.Severity, lat, lng float64) models.Threat {
	return models.Threat{
		ID:        id,
		Indicator: "192.0.2." + id,
		Type:      models.ThreatTypeMalware,
		Severity:  sev,
		Source:    "AlienVault",
		DateAdded: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Location: &models.Location{
			Country:   "France",
			City:      "Paris",
			Latitude:  models.Coord(lat),
			Longitude: models.Coord(lng),
		},
		Confidence: 80,
		IsActive:   true,
	}
}

func newTestController(t *testing.T, s Surface) *Controller {
	t.Helper()
	return NewController(s, DefaultConfig(), logger.NewNop())
}

func TestController_ReconcileKeepsCommonMarkers(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	a := geoThreat("a", models.SeverityHigh, 48.8, 2.3)
	b := geoThreat("b", models.SeverityLow, 51.5, -0.1)
	cc := geoThreat("c", models.SeverityMedium, 40.7, -74.0)

	c.SetVisible([]models.Threat{a, b})
	require.NoError(t, c.Init(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b"}, s.layer.added)

	bInstance := s.layer.markers["b"]
	s.layer.reset()

	res := c.SetVisible([]models.Threat{b, cc})

	assert.Equal(t, ReconcileResult{Added: 1, Removed: 1}, res)
	assert.Equal(t, []string{"a"}, s.layer.removed)
	assert.Equal(t, []string{"c"}, s.layer.added)
	assert.Empty(t, s.layer.restyled)
	assert.Same(t, bInstance, s.layer.markers["b"])
}

func TestController_RestylesOnSeverityChange(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	b := geoThreat("b", models.SeverityLow, 51.5, -0.1)
	c.SetVisible([]models.Threat{b})
	require.NoError(t, c.Init(context.Background()))
	instance := s.layer.markers["b"]
	s.layer.reset()

	b.Severity = models.SeverityHigh
	res := c.SetVisible([]models.Threat{b})

	assert.Equal(t, ReconcileResult{Restyled: 1}, res)
	assert.Empty(t, s.layer.added)
	assert.Empty(t, s.layer.removed)
	assert.Same(t, instance, s.layer.markers["b"])
	assert.Equal(t, "#EF4444", s.layer.markers["b"].Style.Color)
}

func TestController_MovedMarkerIsReplaced(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	b := geoThreat("b", models.SeverityLow, 51.5, -0.1)
	c.SetVisible([]models.Threat{b})
	require.NoError(t, c.Init(context.Background()))
	s.layer.reset()

	b.Location.Latitude = models.Coord(52.0)
	res := c.SetVisible([]models.Threat{b})

	assert.Equal(t, ReconcileResult{Added: 1, Removed: 1}, res)
	assert.Equal(t, 52.0, s.layer.markers["b"].Latitude)
}

func TestController_SkipsThreatsWithoutCoordinates(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	located := geoThreat("a", models.SeverityHigh, 10, 10)
	noCoords := geoThreat("b", models.SeverityHigh, 0, 0)
	noCoords.Location.Latitude = nil
	noLocation := geoThreat("c", models.SeverityHigh, 0, 0)
	noLocation.Location = nil

	c.SetVisible([]models.Threat{located, noCoords, noLocation})
	require.NoError(t, c.Init(context.Background()))

	assert.Equal(t, []string{"a"}, s.layer.added)
	assert.Len(t, c.Markers(), 1)
}

func TestController_InitFailureIsRetryable(t *testing.T) {
	s := newFakeSurface()
	s.failNext = 1
	c := newTestController(t, s)
	c.SetVisible([]models.Threat{geoThreat("a", models.SeverityHigh, 10, 10)})

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	assert.Equal(t, StateUninitialized, c.State())
	assert.Equal(t, 1, s.releases)
	assert.Empty(t, s.layer.added)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, []string{"a"}, s.layer.added)
}

func TestController_InitIsNoOpWhenReady(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, 1, s.attaches)
}

func TestController_ConcurrentInitAttachesOnce(t *testing.T) {
	s := newFakeSurface()
	s.started = make(chan struct{})
	s.proceed = make(chan struct{})
	c := newTestController(t, s)

	done := make(chan error, 1)
	go func() { done <- c.Init(context.Background()) }()
	<-s.started

	// second attempt while the first is in flight
	require.NoError(t, c.Init(context.Background()))

	close(s.proceed)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.attaches)
	assert.Equal(t, StateReady, c.State())
}

func TestController_DisposeDuringInit(t *testing.T) {
	s := newFakeSurface()
	s.started = make(chan struct{})
	s.proceed = make(chan struct{})
	c := newTestController(t, s)
	c.SetVisible([]models.Threat{geoThreat("a", models.SeverityHigh, 10, 10)})

	done := make(chan error, 1)
	go func() { done <- c.Init(context.Background()) }()
	<-s.started

	require.NoError(t, c.Dispose())
	close(s.proceed)

	require.NoError(t, <-done)
	assert.Equal(t, StateDisposed, c.State())
	assert.Equal(t, 1, s.releases)
	assert.Empty(t, s.layer.added)
}

func TestController_DisposeIsIdempotent(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)
	require.NoError(t, c.Init(context.Background()))

	require.NoError(t, c.Dispose())
	require.NoError(t, c.Dispose())
	assert.Equal(t, 1, s.releases)
	assert.Equal(t, StateDisposed, c.State())

	assert.ErrorIs(t, c.Init(context.Background()), ErrDisposed)
	assert.ErrorIs(t, c.SetBasemap(models.BasemapSatellite), ErrDisposed)
}

func TestController_BasemapChangeLeavesMarkers(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)
	c.SetVisible([]models.Threat{geoThreat("a", models.SeverityHigh, 10, 10)})
	require.NoError(t, c.Init(context.Background()))
	s.layer.reset()

	require.NoError(t, c.SetBasemap(models.BasemapSatellite))

	assert.Empty(t, s.layer.added)
	assert.Empty(t, s.layer.removed)
	assert.Empty(t, s.layer.restyled)
	require.Len(t, s.basemaps, 2)
	assert.Contains(t, s.basemaps[1].URL, "arcgisonline")
	assert.Equal(t, models.BasemapSatellite, c.View().Basemap)

	assert.ErrorIs(t, c.SetBasemap("terrain"), ErrInvalidBasemap)
}

func TestController_MapFilterNarrowsMarkers(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)

	low := geoThreat("low", models.SeverityLow, 10, 10)
	low.Confidence = 30
	high := geoThreat("high", models.SeverityHigh, 20, 20)
	c.SetVisible([]models.Threat{low, high})
	require.NoError(t, c.Init(context.Background()))
	s.layer.reset()

	res, err := c.SetFilter(MapFilter{MinConfidence: 50})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Removed: 1}, res)
	assert.Equal(t, []string{"low"}, s.layer.removed)

	breakdown := c.CountryBreakdown(10)
	require.Len(t, breakdown, 1)
	assert.Equal(t, models.CategoryCount{Category: "France", Count: 1}, breakdown[0])
}

func TestController_SetViewportClamps(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)
	require.NoError(t, c.Init(context.Background()))

	vp, err := c.SetViewport(models.Viewport{Latitude: 120, Longitude: -200, Zoom: 30})
	require.NoError(t, err)
	assert.Equal(t, 90.0, vp.Latitude)
	assert.Equal(t, -180.0, vp.Longitude)
	assert.Equal(t, 18, vp.Zoom)
	require.Len(t, s.viewports, 1)
}

func TestController_FollowsFilterEngine(t *testing.T) {
	s := newFakeSurface()
	c := newTestController(t, s)
	require.NoError(t, c.Init(context.Background()))

	engine := services.NewFilterEngine(logger.NewNop())
	unsubscribe := engine.Subscribe(c.Observer())
	defer unsubscribe()

	engine.Load([]models.Threat{
		geoThreat("a", models.SeverityHigh, 10, 10),
		geoThreat("b", models.SeverityLow, 20, 20),
	})
	assert.Len(t, s.layer.markers, 2)

	engine.UpdateCriteria(models.CriteriaPatch{Severity: []models.Severity{models.SeverityHigh}})
	assert.Len(t, s.layer.markers, 1)
	assert.Contains(t, s.layer.markers, "a")

	s.layer.reset()
	engine.Select("b")
	assert.Empty(t, s.layer.added)
	assert.Empty(t, s.layer.removed)
}

func TestController_HandoffCarriesSettings(t *testing.T) {
	first := newFakeSurface()
	c := newTestController(t, first)
	require.NoError(t, c.Init(context.Background()))

	c.SetVisible([]models.Threat{
		geoThreat("a", models.SeverityHigh, 10, 10),
		geoThreat("b", models.SeverityLow, 20, 20),
	})
	require.NoError(t, c.SetBasemap(models.BasemapSatellite))
	require.NoError(t, c.SetFullscreen(true))
	_, err := c.SetFilter(MapFilter{Severities: []models.Severity{models.SeverityHigh}})
	require.NoError(t, err)

	second := newFakeSurface()
	next := c.Handoff(second)

	assert.Equal(t, StateDisposed, c.State())
	assert.Equal(t, 1, first.releases)
	assert.Equal(t, StateUninitialized, next.State())

	require.NoError(t, next.Init(context.Background()))
	view := next.View()
	assert.Equal(t, models.BasemapSatellite, view.Basemap)
	assert.True(t, view.Fullscreen)
	assert.Equal(t, 1, view.Rendered)
	assert.Contains(t, second.layer.markers, "a")
	assert.Equal(t, DefaultConfig().Basemaps[models.BasemapSatellite], second.basemaps[0])
}

func TestController_HeadlessInitFails(t *testing.T) {
	c := NewController(nil, DefaultConfig(), logger.NewNop())
	c.SetVisible([]models.Threat{geoThreat("a", models.SeverityHigh, 10, 10)})

	err := c.Init(context.Background())
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	assert.Equal(t, StateUninitialized, c.State())
	assert.Len(t, c.Markers(), 1)
	assert.NoError(t, c.Dispose())
}

func TestFeatureCollection(t *testing.T) {
	th := geoThreat("a", models.SeverityHigh, 48.8, 2.3)
	m, ok := MarkerFor(&th)
	require.True(t, ok)

	fc := FeatureCollection([]models.Marker{m})
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "a", f.ID)
	assert.Equal(t, []float64{2.3, 48.8}, f.Geometry.Point)
	assert.Equal(t, "high", f.Properties["severity"])
	assert.Equal(t, "FR", f.Properties["countryCode"])
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, "#EF4444", StyleFor(models.SeverityHigh).Color)
	assert.Equal(t, "!", StyleFor(models.SeverityMedium).Glyph)
	assert.Equal(t, "#10B981", StyleFor(models.SeverityLow).Color)
	assert.Equal(t, StyleFor(models.SeverityInfo), StyleFor("bogus"))
}
