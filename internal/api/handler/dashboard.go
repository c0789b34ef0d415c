package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/activity"
	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/dashboard"
)

// StatsSource computes and streams dashboard stats.
type StatsSource interface {
	Stats(ctx context.Context, userID string) dashboard.Stats
	Watch(ctx context.Context, userID string) <-chan dashboard.Stats
}

// ActivitySource lists the recent activity feed.
type ActivitySource interface {
	Recent(ctx context.Context, userID, city string) []activity.Item
}

// ScoreReader reads the stored safety score.
type ScoreReader interface {
	Get(ctx context.Context, userID string) (score int, ok bool, err error)
	Last(userID string) (int, bool)
}

// DashboardHandler serves the dashboard, activity and safety score views.
type DashboardHandler struct {
	stats    StatsSource
	activity ActivitySource
	scores   ScoreReader
	logger   zerolog.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(stats StatsSource, feed ActivitySource, scores ScoreReader, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		stats:    stats,
		activity: feed,
		scores:   scores,
		logger:   logger.With().Str("handler", "dashboard").Logger(),
	}
}

// Dashboard handles GET /v1/dashboard.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.stats.Stats(r.Context(), GetUserID(r.Context())))
}

// Stream handles GET /v1/dashboard/stream.
func (h *DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamEvents(w, r, "stats", h.stats.Watch(r.Context(), GetUserID(r.Context())))
}

// Activity handles GET /v1/activity?city=. Without a city, the city of the
// current dashboard is used for alerts.
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	city := newQueryParams(r).str("city")
	if city == "" {
		city = h.stats.Stats(r.Context(), userID).City
	}
	items := h.activity.Recent(r.Context(), userID, city)
	if items == nil {
		items = []activity.Item{}
	}
	response.JSON(w, r, http.StatusOK, models.ActivityResponse{Items: items})
}

// SafetyScore handles GET /v1/profile/safety-score. A read failure falls
// back to the last value seen on the change feed.
func (h *DashboardHandler) SafetyScore(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	score, ok, err := h.scores.Get(r.Context(), userID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("safety score read failed")
		score, ok = h.scores.Last(userID)
	}
	var resp models.SafetyScoreResponse
	if ok {
		resp.Score = &score
	}
	response.JSON(w, r, http.StatusOK, resp)
}
