package handlers

import (
	"net/http"

	"dashguard/internal/dashboard"
	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

// FiltersHandler handles the filter criteria endpoints
type FiltersHandler struct {
	workspaces *dashboard.Manager
	logger     *logger.Logger
}

// NewFiltersHandler creates a new FiltersHandler
func NewFiltersHandler(m *dashboard.Manager, log *logger.Logger) *FiltersHandler {
	return &FiltersHandler{
		workspaces: m,
		logger:     log.WithComponent("filters"),
	}
}

// Get handles GET /api/v1/filters
func (h *FiltersHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	h.respondCriteria(w, ws.Engine().Criteria(), len(ws.Engine().VisibleSet()))
}

// Patch handles PATCH /api/v1/filters
// Fields absent from the body keep their value; dateRange bounds merge one by one.
func (h *FiltersHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	var patch models.CriteriaPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	criteria := ws.Engine().UpdateCriteria(patch)
	h.respondCriteria(w, criteria, len(ws.Engine().VisibleSet()))
}

// Reset handles DELETE /api/v1/filters
func (h *FiltersHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}
	ws.Engine().ResetCriteria()
	h.respondCriteria(w, ws.Engine().Criteria(), len(ws.Engine().VisibleSet()))
}

func (h *FiltersHandler) respondCriteria(w http.ResponseWriter, c models.FilterCriteria, visible int) {
	respondJSON(w, http.StatusOK, map[string]any{
		"data":       c,
		"is_default": c.IsDefault(),
		"visible":    visible,
	})
}
