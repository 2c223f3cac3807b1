package handlers

import (
	"net/http"
	"strconv"

	"dashguard/internal/config"
	"dashguard/internal/dashboard"
	"dashguard/internal/domain/models"
	"dashguard/internal/domain/services"
	"dashguard/pkg/logger"
)

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	workspaces *dashboard.Manager
	cfg        config.DashboardConfig
	logger     *logger.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(m *dashboard.Manager, cfg config.DashboardConfig, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		workspaces: m,
		cfg:        cfg,
		logger:     log.WithComponent("stats"),
	}
}

// Get handles GET /api/v1/stats?top=&sources=&days=&range=&scope=
// The snapshot covers the visible set unless scope=all.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	top, err := intParam(q.Get("top"), h.cfg.SummaryTopCountries)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid top")
		return
	}
	sources, err := intParam(q.Get("sources"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sources")
		return
	}
	days, err := intParam(q.Get("days"), h.cfg.DailyWindow)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid days")
		return
	}
	if days > services.MaxDailyWindow {
		respondError(w, http.StatusBadRequest, "days must be at most "+strconv.Itoa(services.MaxDailyWindow))
		return
	}

	rng := models.TimeRange(q.Get("range"))
	switch rng {
	case "", models.TimeRange24Hours, models.TimeRange7Days, models.TimeRange30Days, models.TimeRange90Days:
	default:
		respondError(w, http.StatusBadRequest, "unknown range: "+string(rng))
		return
	}

	scope := q.Get("scope")
	if scope != "" && scope != "visible" && scope != "all" {
		respondError(w, http.StatusBadRequest, "scope must be visible or all")
		return
	}

	snap := ws.Stats(r.Context(), scope == "all", rng, services.AggregateOptions{
		TopCountries: top,
		TopSources:   sources,
		DailyWindow:  days,
	})
	respondJSON(w, http.StatusOK, snap)
}

// Countries handles GET /api/v1/stats/countries?top=
// Countries of the visible set ranked by count, the geographic detail view.
func (h *StatsHandler) Countries(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFor(h.workspaces, h.logger, w, r)
	if !ok {
		return
	}

	top, err := intParam(r.URL.Query().Get("top"), h.cfg.DetailTopCountries)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid top")
		return
	}

	countries := services.TopCountries(ws.Engine().VisibleSet(), top)
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  countries,
		"total": len(countries),
	})
}

// intParam parses a non-negative integer query value, returning def when empty
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
