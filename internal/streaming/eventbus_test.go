package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/pkg/logger"
)

func receive(t *testing.T, ch <-chan *DashboardEvent) *DashboardEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEventBus_FiltersBySubscription(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()

	mine, unsubMine := bus.Subscribe(&Subscription{WorkspaceID: "ws-1"})
	defer unsubMine()
	feedOnly, unsubFeed := bus.Subscribe(&Subscription{Types: []EventType{EventTypeFeedLoaded}})
	defer unsubFeed()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &DashboardEvent{Type: EventTypeCriteriaChanged, WorkspaceID: "ws-2"}))
	require.NoError(t, bus.Publish(ctx, &DashboardEvent{Type: EventTypeCriteriaChanged, WorkspaceID: "ws-1", Version: 3}))
	require.NoError(t, bus.Publish(ctx, &DashboardEvent{Type: EventTypeFeedLoaded, Accepted: 55}))

	ev := receive(t, mine)
	assert.Equal(t, uint64(3), ev.Version)
	ev = receive(t, mine)
	assert.Equal(t, EventTypeFeedLoaded, ev.Type)

	ev = receive(t, feedOnly)
	assert.Equal(t, 55, ev.Accepted)
	assert.Empty(t, feedOnly)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	ch, unsubscribe := bus.Subscribe(nil)
	assert.Equal(t, 1, bus.SubscriberCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestNewChangeEvent(t *testing.T) {
	criteria := models.DefaultCriteria()
	criteria.SearchQuery = "botnet"
	selected := &models.Threat{ID: "t-1"}

	ev := NewChangeEvent("ws-1", services.Change{
		Kind:     services.ChangeCriteriaUpdated,
		Version:  7,
		Visible:  []models.Threat{{ID: "t-1"}, {ID: "t-2"}},
		Criteria: criteria,
		Selected: selected,
	})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventTypeCriteriaChanged, ev.Type)
	assert.Equal(t, 2, ev.VisibleCount)
	require.NotNil(t, ev.Criteria)
	assert.Equal(t, "botnet", ev.Criteria.SearchQuery)
	assert.Equal(t, "t-1", ev.SelectedID)

	ev = NewChangeEvent("ws-1", services.Change{Kind: services.ChangeSelection})
	assert.Equal(t, EventTypeSelectionChanged, ev.Type)
	assert.Nil(t, ev.Criteria)
}

func TestNewFeedEvent_Failure(t *testing.T) {
	ev := NewFeedEvent(FeedLoadEvent{Loader: "file", Err: errors.New("no such file")})
	assert.Equal(t, EventTypeFeedFailed, ev.Type)
	assert.Equal(t, "no such file", ev.Error)
	assert.Empty(t, ev.WorkspaceID)
}

func TestEventSubjects(t *testing.T) {
	assert.Equal(t, "dashguard.events.feed_loaded.feed",
		eventSubject("dashguard.events", &DashboardEvent{Type: EventTypeFeedLoaded}))
	assert.Equal(t, "dashguard.events.criteria_changed.ws_1",
		eventSubject("dashguard.events", &DashboardEvent{Type: EventTypeCriteriaChanged, WorkspaceID: "ws.1"}))

	assert.Equal(t, "dashguard.events.>", subscriptionSubject("dashguard.events", nil))
	assert.Equal(t, "dashguard.events.feed_loaded.>",
		subscriptionSubject("dashguard.events", &Subscription{Types: []EventType{EventTypeFeedLoaded}}))
}

func TestEventBusPublisher_PublishFeedLoad(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe(nil)
	defer unsubscribe()

	p := NewEventBusPublisher(bus)
	require.NoError(t, p.PublishFeedLoad(context.Background(), "mock", 55, 0, 3, time.Second, nil))

	ev := receive(t, ch)
	assert.Equal(t, EventTypeFeedLoaded, ev.Type)
	assert.Equal(t, "mock", ev.Loader)
	assert.Equal(t, 3, ev.Enriched)
}

func TestEventBus_PublishStampsOrigin(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()

	ev := &DashboardEvent{Type: EventTypeFeedLoaded}
	require.NoError(t, bus.Publish(context.Background(), ev))
	assert.NotEmpty(t, ev.Origin)

	other := NewEventBus(nil, logger.NewNop())
	defer other.Close()
	assert.NotEqual(t, bus.origin, other.origin)
}

func TestEventBus_RelaySkipsOwnEvents(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()
	ch, unsubscribe := bus.Subscribe(nil)
	defer unsubscribe()

	remote := make(chan *DashboardEvent, 2)
	remote <- &DashboardEvent{Type: EventTypeFeedLoaded, Origin: bus.origin, Accepted: 1}
	remote <- &DashboardEvent{Type: EventTypeFeedLoaded, Origin: "replica-b", Accepted: 2}
	close(remote)

	bus.relay(context.Background(), remote)

	ev := receive(t, ch)
	assert.Equal(t, 2, ev.Accepted)
	assert.Equal(t, "replica-b", ev.Origin)
	assert.Empty(t, ch)
}

func TestEventBus_RelayWithoutNATS(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()
	assert.NoError(t, bus.Relay(context.Background()))
}
