package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
	"dashguard/internal/geomap"
	"dashguard/pkg/logger"
)

// newSurfaceConn serves one MapSurface over a test server and returns it with
// the browser side of the connection
func newSurfaceConn(t *testing.T) (*MapSurface, *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	surfaces := make(chan *MapSurface, 1)
	upgrader := NewUpgrader(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewMapSurface(conn, 16, logger.NewNop())
		surfaces <- s
		s.Run(ctx)
	}))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})

	select {
	case s := <-surfaces:
		return s, conn
	case <-time.After(2 * time.Second):
		t.Fatal("surface was not created")
		return nil, nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(msg))
}

type attachResult struct {
	layer geomap.MarkerLayer
	err   error
}

func attachAsync(s *MapSurface) <-chan attachResult {
	out := make(chan attachResult, 1)
	go func() {
		layer, err := s.Attach(context.Background(), models.TileLayer{URL: "https://tiles.example/{z}/{x}/{y}.png"}, models.DefaultViewport())
		out <- attachResult{layer: layer, err: err}
	}()
	return out
}

func awaitAttach(t *testing.T, ch <-chan attachResult) attachResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("attach did not return")
		return attachResult{}
	}
}

func TestMapSurface_AttachHandshake(t *testing.T) {
	s, conn := newSurfaceConn(t)

	pending := attachAsync(s)

	initFrame := readFrame(t, conn)
	require.Equal(t, MsgMapInit, initFrame.Type)
	var payload MapInitPayload
	require.NoError(t, json.Unmarshal(initFrame.Payload, &payload))
	assert.Equal(t, "https://tiles.example/{z}/{x}/{y}.png", payload.Tiles.URL)

	sendFrame(t, conn, MsgMapReady, nil)

	res := awaitAttach(t, pending)
	require.NoError(t, res.err)
	assert.Same(t, s, res.layer)

	require.NoError(t, res.layer.AddMarker(models.Marker{ThreatID: "t-1", Latitude: 48.8, Longitude: 2.3}))
	frame := readFrame(t, conn)
	assert.Equal(t, MsgMarkerAdd, frame.Type)
	var marker models.Marker
	require.NoError(t, json.Unmarshal(frame.Payload, &marker))
	assert.Equal(t, "t-1", marker.ThreatID)

	require.NoError(t, res.layer.RestyleMarker(models.Marker{ThreatID: "t-1"}))
	assert.Equal(t, MsgMarkerRestyle, readFrame(t, conn).Type)

	require.NoError(t, res.layer.RemoveMarker("t-1"))
	frame = readFrame(t, conn)
	assert.Equal(t, MsgMarkerRemove, frame.Type)
	var removed MarkerRemovePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &removed))
	assert.Equal(t, "t-1", removed.ThreatID)

	require.NoError(t, s.SetViewport(models.DefaultViewport()))
	assert.Equal(t, MsgMapViewport, readFrame(t, conn).Type)
}

func TestMapSurface_AttachBrowserError(t *testing.T) {
	s, conn := newSurfaceConn(t)

	pending := attachAsync(s)
	require.Equal(t, MsgMapInit, readFrame(t, conn).Type)
	sendFrame(t, conn, MsgMapError, MapErrorPayload{Message: "webgl unavailable"})

	res := awaitAttach(t, pending)
	require.Error(t, res.err)
	assert.Equal(t, "webgl unavailable", res.err.Error())
	assert.Nil(t, res.layer)
}

func TestMapSurface_StaleAckIsDropped(t *testing.T) {
	s, conn := newSurfaceConn(t)

	// an unsolicited ready left over from an earlier page
	sendFrame(t, conn, MsgMapReady, nil)
	require.Eventually(t, func() bool { return len(s.acks) == 1 }, 2*time.Second, 10*time.Millisecond)

	pending := attachAsync(s)
	require.Equal(t, MsgMapInit, readFrame(t, conn).Type)
	sendFrame(t, conn, MsgMapError, nil)

	res := awaitAttach(t, pending)
	require.Error(t, res.err)
	assert.Equal(t, "browser failed to build map", res.err.Error())
}

func TestMapSurface_ConnectionDropsDuringAttach(t *testing.T) {
	s, conn := newSurfaceConn(t)

	pending := attachAsync(s)
	require.Equal(t, MsgMapInit, readFrame(t, conn).Type)
	require.NoError(t, conn.Close())

	res := awaitAttach(t, pending)
	assert.True(t, errors.Is(res.err, ErrSurfaceClosed))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("surface not closed")
	}

	assert.NoError(t, s.Release())
	assert.ErrorIs(t, s.AddMarker(models.Marker{ThreatID: "t-1"}), ErrSurfaceClosed)
	assert.ErrorIs(t, s.SetBasemap(models.TileLayer{}), ErrSurfaceClosed)
}

func TestMapSurface_ControllerRetriesAfterBrowserError(t *testing.T) {
	s, conn := newSurfaceConn(t)

	lat, lng := 48.8, 2.3
	ctrl := geomap.NewController(s, geomap.DefaultConfig(), logger.NewNop())
	ctrl.SetVisible([]models.Threat{{
		ID:       "t-1",
		Type:     models.ThreatTypeMalware,
		Severity: models.SeverityHigh,
		Source:   "AbuseIPDB",
		Location: &models.Location{Country: "France", Latitude: &lat, Longitude: &lng},
	}})

	initAsync := func() <-chan error {
		out := make(chan error, 1)
		go func() { out <- ctrl.Init(context.Background()) }()
		return out
	}

	first := initAsync()
	require.Equal(t, MsgMapInit, readFrame(t, conn).Type)
	sendFrame(t, conn, MsgMapError, MapErrorPayload{Message: "tiles blocked"})

	select {
	case err := <-first:
		require.Error(t, err)
		assert.ErrorIs(t, err, geomap.ErrSurfaceUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("init did not return")
	}
	assert.Equal(t, geomap.StateUninitialized, ctrl.State())
	assert.Equal(t, MsgMapRelease, readFrame(t, conn).Type)

	second := initAsync()
	require.Equal(t, MsgMapInit, readFrame(t, conn).Type)
	sendFrame(t, conn, MsgMapReady, nil)

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("init did not return")
	}
	assert.Equal(t, geomap.StateReady, ctrl.State())

	frame := readFrame(t, conn)
	assert.Equal(t, MsgMarkerAdd, frame.Type)
	var marker models.Marker
	require.NoError(t, json.Unmarshal(frame.Payload, &marker))
	assert.Equal(t, "t-1", marker.ThreatID)
}

func TestWebSocketHub_ConsumesBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub(nil, 16, logger.NewNop())
	go hub.Run(ctx)

	bus := NewEventBus(nil, logger.NewNop())
	defer bus.Close()
	events, unsubscribe := bus.Subscribe(nil)
	defer unsubscribe()
	go hub.Consume(ctx, events)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWebSocket(w, r, "ws-1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	p := NewEventBusPublisher(bus)
	require.NoError(t, p.PublishFeedLoad(ctx, "feodotracker", 12, 1, 0, time.Second, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev DashboardEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, EventTypeFeedLoaded, ev.Type)
	assert.Equal(t, "feodotracker", ev.Loader)
	assert.Equal(t, 12, ev.Accepted)
	assert.NotEmpty(t, ev.Origin)
}
