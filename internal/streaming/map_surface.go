package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dashguard/internal/domain/models"
	"dashguard/internal/geomap"
	"dashguard/pkg/logger"
)

// Map surface message types
const (
	MsgMapInit       = "map.init"
	MsgMapReady      = "map.ready"
	MsgMapError      = "map.error"
	MsgMapBasemap    = "map.basemap"
	MsgMapViewport   = "map.viewport"
	MsgMapRelease    = "map.release"
	MsgMarkerAdd     = "marker.add"
	MsgMarkerRemove  = "marker.remove"
	MsgMarkerRestyle = "marker.restyle"
)

// ErrSurfaceClosed is returned once the browser connection is gone
var ErrSurfaceClosed = errors.New("map surface connection closed")

// MapInitPayload asks the browser to build its map
type MapInitPayload struct {
	Tiles    models.TileLayer `json:"tiles"`
	Viewport models.Viewport  `json:"viewport"`
}

// MarkerRemovePayload names a marker to drop
type MarkerRemovePayload struct {
	ThreatID string `json:"threatId"`
}

// MapErrorPayload reports a browser-side failure to build the map
type MapErrorPayload struct {
	Message string `json:"message"`
}

// MapSurface drives a browser map over a WebSocket connection.
// It implements geomap.Surface and geomap.MarkerLayer.
type MapSurface struct {
	conn   *websocket.Conn
	send   chan []byte
	acks   chan error
	done   chan struct{}
	logger *logger.Logger

	closeOnce sync.Once
}

var (
	_ geomap.Surface     = (*MapSurface)(nil)
	_ geomap.MarkerLayer = (*MapSurface)(nil)
)

// NewMapSurface wraps an upgraded connection
func NewMapSurface(conn *websocket.Conn, buffer int, log *logger.Logger) *MapSurface {
	if buffer <= 0 {
		buffer = 256
	}
	return &MapSurface{
		conn:   conn,
		send:   make(chan []byte, buffer),
		acks:   make(chan error, 1),
		done:   make(chan struct{}),
		logger: log.WithComponent("map-surface"),
	}
}

// Done is closed when the connection ends
func (s *MapSurface) Done() <-chan struct{} {
	return s.done
}

// Attach sends map.init and waits for the browser to acknowledge
func (s *MapSurface) Attach(ctx context.Context, tiles models.TileLayer, vp models.Viewport) (geomap.MarkerLayer, error) {
	// Drop a stale ack from an earlier attempt
	select {
	case <-s.acks:
	default:
	}

	if err := s.emit(MsgMapInit, MapInitPayload{Tiles: tiles, Viewport: vp}); err != nil {
		return nil, err
	}

	select {
	case err := <-s.acks:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for map.ready: %w", ctx.Err())
	case <-s.done:
		return nil, ErrSurfaceClosed
	}
}

// SetBasemap swaps the browser's tile layer
func (s *MapSurface) SetBasemap(tiles models.TileLayer) error {
	return s.emit(MsgMapBasemap, tiles)
}

// SetViewport moves the browser map
func (s *MapSurface) SetViewport(vp models.Viewport) error {
	return s.emit(MsgMapViewport, vp)
}

// Release tells the browser to tear its map down. The connection stays open.
func (s *MapSurface) Release() error {
	err := s.emit(MsgMapRelease, nil)
	if errors.Is(err, ErrSurfaceClosed) {
		return nil
	}
	return err
}

// AddMarker draws a marker
func (s *MapSurface) AddMarker(m models.Marker) error {
	return s.emit(MsgMarkerAdd, m)
}

// RemoveMarker drops a marker
func (s *MapSurface) RemoveMarker(threatID string) error {
	return s.emit(MsgMarkerRemove, MarkerRemovePayload{ThreatID: threatID})
}

// RestyleMarker updates a marker's icon and popup in place
func (s *MapSurface) RestyleMarker(m models.Marker) error {
	return s.emit(MsgMarkerRestyle, m)
}

// Run pumps the connection until the browser goes away or ctx ends.
// It blocks; Done is closed on return.
func (s *MapSurface) Run(ctx context.Context) {
	go s.writePump(ctx)
	s.readPump()
}

func (s *MapSurface) emit(msgType string, payload any) error {
	msg := WebSocketMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", msgType, err)
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}

	select {
	case <-s.done:
		return ErrSurfaceClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSurfaceClosed
	}
}

func (s *MapSurface) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *MapSurface) ack(err error) {
	select {
	case s.acks <- err:
	default:
	}
}

func (s *MapSurface) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("ignoring malformed message")
			continue
		}

		switch msg.Type {
		case MsgMapReady:
			s.ack(nil)
		case MsgMapError:
			var p MapErrorPayload
			_ = json.Unmarshal(msg.Payload, &p)
			if p.Message == "" {
				p.Message = "browser failed to build map"
			}
			s.ack(errors.New(p.Message))
		default:
			s.logger.Debug().Str("type", msg.Type).Msg("ignoring message")
		}
	}
}

func (s *MapSurface) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
