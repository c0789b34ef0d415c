package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
)

const (
	defaultAlertLimit = 20
	maxAlertWindow    = 7 * 24 * time.Hour
)

// AlertReader lists and counts safety alerts.
type AlertReader interface {
	Recent(ctx context.Context, city string, window time.Duration, limit int) ([]*alerts.Alert, error)
	ActiveCount(ctx context.Context, city string, window time.Duration) (int, error)
}

// AlertHandler serves /v1/alerts.
type AlertHandler struct {
	alerts AlertReader
	logger zerolog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(reader AlertReader, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{alerts: reader, logger: logger.With().Str("handler", "alert").Logger()}
}

// List handles GET /v1/alerts?city=&window=&limit=.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	city := q.str("city")
	window := q.durationOr("window", alerts.DashboardWindow, maxAlertWindow)
	limit := q.intOr("limit", defaultAlertLimit, 1, 100)
	if !q.ok(w) {
		return
	}

	items, err := h.alerts.Recent(r.Context(), city, window, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("city", city).Msg("failed to list alerts")
		response.ServiceUnavailable(w, r, "alerts are temporarily unavailable")
		return
	}
	if items == nil {
		items = []*alerts.Alert{}
	}
	response.JSON(w, r, http.StatusOK, models.AlertsResponse{City: city, Window: window.String(), Alerts: items})
}

// Count handles GET /v1/alerts/count?city=&window=.
func (h *AlertHandler) Count(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	city := q.str("city")
	window := q.durationOr("window", alerts.DashboardWindow, maxAlertWindow)
	if !q.ok(w) {
		return
	}

	n, err := h.alerts.ActiveCount(r.Context(), city, window)
	if err != nil {
		h.logger.Error().Err(err).Str("city", city).Msg("failed to count alerts")
		response.ServiceUnavailable(w, r, "alerts are temporarily unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, models.AlertCountResponse{City: city, Window: window.String(), Count: n})
}
