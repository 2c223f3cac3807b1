package streaming

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dashguard/pkg/logger"
)

type subscriber struct {
	ch  chan *DashboardEvent
	sub *Subscription
}

// EventBus distributes dashboard events to subscribers
type EventBus struct {
	nats   *NATSPublisher
	origin string
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	nextID      int
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		origin:      uuid.New().String(),
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*subscriber),
	}
}

// Publish publishes an event to NATS and to all matching local subscribers
func (eb *EventBus) Publish(ctx context.Context, event *DashboardEvent) error {
	if event.Origin == "" {
		event.Origin = eb.origin
	}

	// Publish to NATS if available
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishEvent(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.deliver(event)
	return nil
}

// Relay hands feed events published by other instances to local subscribers
// until ctx ends. Without NATS it returns immediately.
func (eb *EventBus) Relay(ctx context.Context) error {
	if eb.nats == nil {
		return nil
	}

	events, err := eb.nats.Subscribe(ctx, &Subscription{
		Types: []EventType{EventTypeFeedLoaded, EventTypeFeedFailed},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS: %w", err)
	}

	eb.logger.Info().Str("origin", eb.origin).Msg("relaying feed events from other instances")
	eb.relay(ctx, events)
	return nil
}

func (eb *EventBus) relay(ctx context.Context, events <-chan *DashboardEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			// our own events were delivered on Publish
			if event.Origin == eb.origin {
				continue
			}
			eb.deliver(event)
		}
	}
}

func (eb *EventBus) deliver(event *DashboardEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, s := range eb.subscribers {
		if s.sub != nil && !s.sub.Matches(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe creates a new subscription and returns a channel for events
func (eb *EventBus) Subscribe(sub *Subscription) (<-chan *DashboardEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := fmt.Sprintf("sub-%d", eb.nextID)
	ch := make(chan *DashboardEvent, 100)
	eb.subscribers[id] = &subscriber{ch: ch, sub: sub}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	// Return unsubscribe function
	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, s := range eb.subscribers {
		close(s.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
