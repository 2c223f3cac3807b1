package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dashguard/internal/dashboard"
	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/pkg/logger"
)

// ThreatsHandler handles the threat list and selection endpoints
type ThreatsHandler struct {
	workspaces *dashboard.Manager
	logger     *logger.Logger
}

// NewThreatsHandler creates a new ThreatsHandler
func NewThreatsHandler(m *dashboard.Manager, log *logger.Logger) *ThreatsHandler {
	return &ThreatsHandler{
		workspaces: m,
		logger:     log.WithComponent("threats"),
	}
}

// List handles GET /api/v1/threats?sort=&dir=
// Without sort the visible set is returned in feed order.
func (h *ThreatsHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var threats []models.Threat
	if raw := q.Get("sort"); raw != "" {
		key, valid := services.ParseSortKey(raw)
		if !valid {
			respondError(w, http.StatusBadRequest, "unknown sort key: "+raw)
			return
		}
		threats = ws.Sorted(key, services.ParseSortDirection(q.Get("dir")))
	} else {
		threats = ws.Engine().VisibleSet()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":     threats,
		"total":    len(threats),
		"criteria": ws.Engine().Criteria(),
		"version":  ws.Engine().Version(),
	})
}

// All handles GET /api/v1/threats/all
func (h *ThreatsHandler) All(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	threats := ws.Engine().All()
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  threats,
		"total": len(threats),
	})
}

// Select handles POST /api/v1/threats/{id}/select
// The id is looked up among all threats, so a filtered-out threat can be selected.
func (h *ThreatsHandler) Select(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	selected := ws.Engine().Select(id)
	if selected == nil {
		respondError(w, http.StatusNotFound, "threat not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": selected})
}

// GetSelection handles GET /api/v1/selection
func (h *ThreatsHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": ws.Engine().Selected()})
}

// ClearSelection handles DELETE /api/v1/selection
func (h *ThreatsHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	ws.Engine().ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}
