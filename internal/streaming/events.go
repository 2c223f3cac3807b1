package streaming

import (
	"time"

	"github.com/google/uuid"

	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
)

// EventType represents the type of dashboard event
type EventType string

const (
	EventTypeThreatsLoaded    EventType = "threats_loaded"
	EventTypeCriteriaChanged  EventType = "criteria_changed"
	EventTypeSelectionChanged EventType = "selection_changed"
	EventTypeFeedLoaded       EventType = "feed_loaded"
	EventTypeFeedFailed       EventType = "feed_failed"
)

// DashboardEvent represents a real-time change in a workspace or in the feed
type DashboardEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"` // publishing instance

	// Workspace changes
	WorkspaceID  string                 `json:"workspace_id,omitempty"`
	Version      uint64                 `json:"version,omitempty"`
	VisibleCount int                    `json:"visible_count"`
	Criteria     *models.FilterCriteria `json:"criteria,omitempty"`
	SelectedID   string                 `json:"selected_id,omitempty"`

	// Feed loads
	Loader   string        `json:"loader,omitempty"`
	Accepted int           `json:"accepted,omitempty"`
	Rejected int           `json:"rejected,omitempty"`
	Enriched int           `json:"enriched,omitempty"`
	Duration time.Duration `json:"duration_ms,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// NewChangeEvent creates an event from a filter engine change
func NewChangeEvent(workspaceID string, change services.Change) *DashboardEvent {
	event := &DashboardEvent{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		WorkspaceID:  workspaceID,
		Version:      change.Version,
		VisibleCount: len(change.Visible),
	}

	switch change.Kind {
	case services.ChangeThreatsLoaded:
		event.Type = EventTypeThreatsLoaded
	case services.ChangeSelection:
		event.Type = EventTypeSelectionChanged
	default:
		event.Type = EventTypeCriteriaChanged
	}

	if change.Kind != services.ChangeSelection {
		criteria := change.Criteria.Clone()
		event.Criteria = &criteria
	}
	if change.Selected != nil {
		event.SelectedID = change.Selected.ID
	}

	return event
}

// FeedLoadEvent represents a feed load completion event
type FeedLoadEvent struct {
	Loader   string
	Accepted int
	Rejected int
	Enriched int
	Duration time.Duration
	Err      error
}

// NewFeedEvent creates an event from a feed load result
func NewFeedEvent(load FeedLoadEvent) *DashboardEvent {
	event := &DashboardEvent{
		ID:           uuid.New().String(),
		Type:         EventTypeFeedLoaded,
		Timestamp:    time.Now(),
		Loader:       load.Loader,
		Accepted:     load.Accepted,
		Rejected:     load.Rejected,
		Enriched:     load.Enriched,
		Duration:     load.Duration,
		VisibleCount: load.Accepted,
	}
	if load.Err != nil {
		event.Type = EventTypeFeedFailed
		event.Error = load.Err.Error()
	}
	return event
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Restrict to one workspace; feed events carry no workspace and always pass
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Filter by event types (empty = all)
	Types []EventType `json:"types,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *DashboardEvent) bool {
	if s.WorkspaceID != "" && event.WorkspaceID != "" && event.WorkspaceID != s.WorkspaceID {
		return false
	}

	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
