package dashboard

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/internal/geomap"
	"dashguard/pkg/logger"
)

const publishTimeout = 2 * time.Second

// ChangePublisher forwards workspace changes to live subscribers
type ChangePublisher interface {
	PublishChange(ctx context.Context, workspaceID string, change services.Change) error
}

type sortCacheKey struct {
	version uint64
	key     services.SortKey
	dir     services.SortDirection
}

// Workspace is one analyst's view of the feed: a filter engine, the map
// controller following its visible set and a cache of sorted views
type Workspace struct {
	ID        string
	User      models.SessionUser
	CreatedAt time.Time

	engine    *services.FilterEngine
	stats     *services.StatsService
	publisher ChangePublisher
	logger    *logger.Logger

	sorted *lru.Cache[sortCacheKey, []models.Threat]

	mapMu sync.Mutex
	geo   *geomap.Controller

	unsubscribe func()
	closeOnce   sync.Once
}

func newWorkspace(
	id string,
	user models.SessionUser,
	mapCfg geomap.Config,
	sortCacheSize int,
	stats *services.StatsService,
	publisher ChangePublisher,
	log *logger.Logger,
) (*Workspace, error) {
	if sortCacheSize <= 0 {
		sortCacheSize = 16
	}
	sorted, err := lru.New[sortCacheKey, []models.Threat](sortCacheSize)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		ID:        id,
		User:      user,
		CreatedAt: time.Now(),
		engine:    services.NewFilterEngine(log.WithSession(id)),
		stats:     stats,
		publisher: publisher,
		logger:    log.WithComponent("workspace").WithSession(id),
		sorted:    sorted,
		geo:       geomap.NewController(nil, mapCfg, log.WithSession(id)),
	}
	w.unsubscribe = w.engine.Subscribe(w.onChange)
	return w, nil
}

// Engine returns the workspace's filter engine
func (w *Workspace) Engine() *services.FilterEngine {
	return w.engine
}

// Map returns the current map controller. Without a connected surface it is
// headless: its settings, markers and breakdowns work but Init fails.
func (w *Workspace) Map() *geomap.Controller {
	w.mapMu.Lock()
	defer w.mapMu.Unlock()
	return w.geo
}

// OpenMap binds surface to the workspace, replacing any previous surface, and
// returns the uninitialized controller that now drives it
func (w *Workspace) OpenMap(surface geomap.Surface) *geomap.Controller {
	w.mapMu.Lock()
	defer w.mapMu.Unlock()
	w.geo = w.handoffLocked(surface)
	w.logger.Debug().Msg("map surface bound")
	return w.geo
}

// CloseMap disposes c. When c is still the current controller the workspace
// keeps its settings in a headless controller.
func (w *Workspace) CloseMap(c *geomap.Controller) {
	w.mapMu.Lock()
	defer w.mapMu.Unlock()
	if w.geo == c {
		w.geo = w.handoffLocked(nil)
		w.logger.Debug().Msg("map surface released")
		return
	}
	if err := c.Dispose(); err != nil {
		w.logger.Warn().Err(err).Msg("failed to dispose map controller")
	}
}

// handoffLocked replaces the current controller. The successor is seeded from
// the engine, not the old controller: a SetVisible racing the handoff may have
// landed on the disposed one. Callers hold mapMu.
func (w *Workspace) handoffLocked(surface geomap.Surface) *geomap.Controller {
	next := w.geo.Handoff(surface)
	next.SetVisible(w.engine.VisibleSet())
	return next
}

// Load replaces the workspace's threats, keeping its criteria
func (w *Workspace) Load(threats []models.Threat) {
	w.engine.Load(threats)
}

// Sorted returns the visible set ordered by key and dir
func (w *Workspace) Sorted(key services.SortKey, dir services.SortDirection) []models.Threat {
	before := w.engine.Version()
	visible := w.engine.VisibleSet()

	ck := sortCacheKey{version: before, key: key, dir: dir}
	if cached, ok := w.sorted.Get(ck); ok {
		return models.CloneThreats(cached)
	}

	out := services.SortBy(visible, key, dir)
	if w.engine.Version() == before {
		w.sorted.Add(ck, models.CloneThreats(out))
	}
	return out
}

// Stats returns the snapshot of the visible set, or of every threat when all is set
func (w *Workspace) Stats(ctx context.Context, all bool, rng models.TimeRange, opts services.AggregateOptions) models.StatsSnapshot {
	version := w.engine.Version()
	scope := w.ID + ":visible"
	threats := w.engine.VisibleSet()
	if all {
		scope = w.ID + ":all"
		threats = w.engine.All()
	}
	if w.engine.Version() != version {
		// changed while reading; do not cache under either version
		scope = ""
	}

	return w.stats.Snapshot(ctx, services.StatsQuery{
		Scope:   scope,
		Version: version,
		Range:   rng,
		Options: opts,
	}, threats)
}

// Close stops following the engine and disposes the map. It is idempotent.
func (w *Workspace) Close() {
	w.closeOnce.Do(func() {
		w.unsubscribe()
		if err := w.Map().Dispose(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to dispose map controller")
		}
		w.sorted.Purge()
		w.logger.Debug().Msg("workspace closed")
	})
}

func (w *Workspace) onChange(change services.Change) {
	if change.Kind.VisibleChanged() {
		w.Map().SetVisible(change.Visible)
	}

	if w.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := w.publisher.PublishChange(ctx, w.ID, change); err != nil {
		w.logger.Warn().Err(err).Msg("failed to publish change")
	}
}
