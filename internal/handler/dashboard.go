package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/webatelier/livechat-server-go/internal/errors"
	"github.com/webatelier/livechat-server-go/internal/model"
	"github.com/webatelier/livechat-server-go/internal/service"
)

type DashboardHandler struct {
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.Stats)
	r.Get("/sessions", h.Sessions)

	return r
}

// GET /v1/dashboard/stats
//
// Served from the periodically refreshed cache; the aggregate may lag the
// log by up to the refresh interval.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.GlobalStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get dashboard stats")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /v1/dashboard/sessions?status=&limit=&offset=
func (h *DashboardHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	var filter model.SessionFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.SessionStatus(raw)
		if !model.ValidStatus(status) {
			writeError(w, apperrors.InvalidInput("status", raw))
			return
		}
		filter.Status = &status
	}

	summaries, total, err := h.dashboardService.SessionSummaries(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to build session summaries")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": summaries,
		"total":    total,
		"hasMore":  page.Offset+len(summaries) < total,
	})
}
