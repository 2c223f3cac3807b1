package services

import (
	"sync"

	"dashguard/internal/domain/models"
	"dashguard/internal/metrics"
	"dashguard/pkg/logger"
)

// ChangeKind identifies what caused a change notification
type ChangeKind string

const (
	ChangeThreatsLoaded   ChangeKind = "threats_loaded"
	ChangeCriteriaUpdated ChangeKind = "criteria_updated"
	ChangeCriteriaReset   ChangeKind = "criteria_reset"
	ChangeSelection       ChangeKind = "selection_changed"
)

// VisibleChanged reports whether the change recomputed the visible set
func (k ChangeKind) VisibleChanged() bool {
	return k != ChangeSelection
}

// Change is delivered to observers after every state change.
// Visible and Criteria are copies owned by the receiving observer.
type Change struct {
	Kind     ChangeKind
	Version  uint64
	Visible  []models.Threat
	Criteria models.FilterCriteria
	Selected *models.Threat
}

// Observer receives change notifications. Observers run synchronously on the
// writer's goroutine and must not call FilterEngine write operations.
type Observer func(Change)

// FilterEngine owns the threat collection, the filter criteria and the derived
// visible set. All writes are serialized.
type FilterEngine struct {
	logger *logger.Logger

	// writeMu serializes a write together with its notifications
	writeMu sync.Mutex

	mu       sync.RWMutex
	all      []models.Threat
	criteria models.FilterCriteria
	visible  []models.Threat
	selected *models.Threat
	version  uint64

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextID    int
}

// NewFilterEngine creates an empty engine with default criteria
func NewFilterEngine(log *logger.Logger) *FilterEngine {
	return &FilterEngine{
		logger:    log.WithComponent("filter-engine"),
		all:       []models.Threat{},
		criteria:  models.DefaultCriteria(),
		visible:   []models.Threat{},
		observers: make(map[int]Observer),
	}
}

// Load replaces the threat collection and recomputes the visible set against
// the current criteria. A selection whose record is gone is cleared.
func (e *FilterEngine) Load(threats []models.Threat) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.all = models.CloneThreats(threats)
	e.recompute()
	if e.selected != nil {
		e.selected = e.lookup(e.selected.ID)
	}
	change := e.changeLocked(ChangeThreatsLoaded)
	e.mu.Unlock()

	metrics.FilterRecomputations.WithLabelValues(string(ChangeThreatsLoaded)).Inc()
	e.logger.Debug().
		Int("threats", len(threats)).
		Int("visible", len(change.Visible)).
		Msg("threats loaded")

	e.notify(change)
}

// UpdateCriteria merges patch into the current criteria and recomputes
func (e *FilterEngine) UpdateCriteria(patch models.CriteriaPatch) models.FilterCriteria {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.criteria = patch.Apply(e.criteria)
	e.recompute()
	change := e.changeLocked(ChangeCriteriaUpdated)
	e.mu.Unlock()

	metrics.FilterRecomputations.WithLabelValues(string(ChangeCriteriaUpdated)).Inc()
	e.logger.Debug().
		Int("visible", len(change.Visible)).
		Str("search", change.Criteria.SearchQuery).
		Msg("criteria updated")

	criteria := change.Criteria.Clone()
	e.notify(change)
	return criteria
}

// ResetCriteria restores the default criteria; the visible set becomes a copy
// of the full collection.
func (e *FilterEngine) ResetCriteria() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.criteria = models.DefaultCriteria()
	e.visible = models.CloneThreats(e.all)
	e.version++
	change := e.changeLocked(ChangeCriteriaReset)
	e.mu.Unlock()

	metrics.FilterRecomputations.WithLabelValues(string(ChangeCriteriaReset)).Inc()
	metrics.VisibleThreats.Observe(float64(len(change.Visible)))
	e.logger.Debug().Msg("criteria reset")

	e.notify(change)
}

// Select looks the id up in the full collection, not the visible set.
// An unknown id yields a nil selection.
func (e *FilterEngine) Select(id string) *models.Threat {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.selected = e.lookup(id)
	change := e.changeLocked(ChangeSelection)
	e.mu.Unlock()

	selected := cloneSelected(change.Selected)
	if selected == nil {
		e.logger.Debug().Str("threat_id", id).Msg("selection target not found")
	}

	e.notify(change)
	return selected
}

// ClearSelection drops the selected threat
func (e *FilterEngine) ClearSelection() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	e.selected = nil
	change := e.changeLocked(ChangeSelection)
	e.mu.Unlock()

	e.notify(change)
}

// VisibleSet returns a fresh copy of the visible set
func (e *FilterEngine) VisibleSet() []models.Threat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CloneThreats(e.visible)
}

// All returns a fresh copy of the full collection
func (e *FilterEngine) All() []models.Threat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CloneThreats(e.all)
}

// Criteria returns a copy of the active criteria
func (e *FilterEngine) Criteria() models.FilterCriteria {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.criteria.Clone()
}

// Selected returns a copy of the selected threat, or nil
func (e *FilterEngine) Selected() *models.Threat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneSelected(e.selected)
}

// Version increases every time the visible set is recomputed
func (e *FilterEngine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Subscribe registers an observer and returns its unsubscribe function
func (e *FilterEngine) Subscribe(fn Observer) func() {
	e.obsMu.Lock()
	e.nextID++
	id := e.nextID
	e.observers[id] = fn
	e.obsMu.Unlock()

	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		delete(e.observers, id)
	}
}

// recompute must be called with mu held
func (e *FilterEngine) recompute() {
	e.visible = FilterThreats(e.all, e.criteria)
	e.version++
	metrics.VisibleThreats.Observe(float64(len(e.visible)))
}

// lookup must be called with mu held
func (e *FilterEngine) lookup(id string) *models.Threat {
	for i := range e.all {
		if e.all[i].ID == id {
			t := e.all[i].Clone()
			return &t
		}
	}
	return nil
}

// changeLocked must be called with mu held
func (e *FilterEngine) changeLocked(kind ChangeKind) Change {
	return Change{
		Kind:     kind,
		Version:  e.version,
		Visible:  models.CloneThreats(e.visible),
		Criteria: e.criteria.Clone(),
		Selected: cloneSelected(e.selected),
	}
}

func (e *FilterEngine) notify(change Change) {
	e.obsMu.RLock()
	observers := make([]Observer, 0, len(e.observers))
	for _, fn := range e.observers {
		observers = append(observers, fn)
	}
	e.obsMu.RUnlock()

	for _, fn := range observers {
		fn(Change{
			Kind:     change.Kind,
			Version:  change.Version,
			Visible:  models.CloneThreats(change.Visible),
			Criteria: change.Criteria.Clone(),
			Selected: cloneSelected(change.Selected),
		})
	}
}

func cloneSelected(t *models.Threat) *models.Threat {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}
