package streaming

import (
	"context"
	"time"

	"dashguard/internal/domain/services"
)

// EventBusPublisher implements services.EventPublisher and forwards workspace
// changes and feed loads to the EventBus
type EventBusPublisher struct {
	eventBus *EventBus
}

var _ services.EventPublisher = (*EventBusPublisher)(nil)

// NewEventBusPublisher creates a new publisher adapter
func NewEventBusPublisher(eventBus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{eventBus: eventBus}
}

// PublishChange publishes a filter engine change for a workspace
func (p *EventBusPublisher) PublishChange(ctx context.Context, workspaceID string, change services.Change) error {
	return p.publish(ctx, NewChangeEvent(workspaceID, change))
}

// PublishFeedLoad publishes a feed load completion event
func (p *EventBusPublisher) PublishFeedLoad(ctx context.Context, loaderSlug string, accepted, rejected, enriched int, duration time.Duration, err error) error {
	return p.publish(ctx, NewFeedEvent(FeedLoadEvent{
		Loader:   loaderSlug,
		Accepted: accepted,
		Rejected: rejected,
		Enriched: enriched,
		Duration: duration,
		Err:      err,
	}))
}

func (p *EventBusPublisher) publish(ctx context.Context, event *DashboardEvent) error {
	return p.eventBus.Publish(ctx, event)
}
