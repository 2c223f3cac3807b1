package handlers

import (
	"net/http"

	"dashguard/internal/dashboard"
	"dashguard/internal/streaming"
	"dashguard/pkg/logger"
)

// StreamingHandler handles real-time event streaming endpoints
type StreamingHandler struct {
	workspaces *dashboard.Manager
	wsHub      *streaming.WebSocketHub
	eventBus   *streaming.EventBus
	logger     *logger.Logger
}

// NewStreamingHandler creates a new streaming handler
func NewStreamingHandler(m *dashboard.Manager, wsHub *streaming.WebSocketHub, eventBus *streaming.EventBus, log *logger.Logger) *StreamingHandler {
	return &StreamingHandler{
		workspaces: m,
		wsHub:      wsHub,
		eventBus:   eventBus,
		logger:     log.WithComponent("streaming-handler"),
	}
}

// HandleWebSocket handles GET /api/v1/events/ws. The client only receives
// events of its own workspace and feed-wide events.
func (h *StreamingHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	h.logger.Debug().
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Str("workspace_id", ws.ID).
		Msg("WebSocket connection request")

	h.wsHub.ServeWebSocket(w, r, ws.ID)
}

// GetStats handles GET /api/v1/events/stats
func (h *StreamingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]int{
		"websocket_clients":     0,
		"event_bus_subscribers": 0,
		"workspaces":            h.workspaces.Len(),
	}
	if h.wsHub != nil {
		stats["websocket_clients"] = h.wsHub.ClientCount()
	}
	if h.eventBus != nil {
		stats["event_bus_subscribers"] = h.eventBus.SubscriberCount()
	}
	respondJSON(w, http.StatusOK, stats)
}
