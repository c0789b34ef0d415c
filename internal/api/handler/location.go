package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// LocationStore records and reads user locations.
type LocationStore interface {
	Record(ctx context.Context, userID string, sample location.Sample) (*location.RecordResult, error)
	Share(ctx context.Context, userID string, sample location.Sample) (*location.StoredLocation, error)
	Latest(ctx context.Context, userID string) (location.Latest, bool)
}

// LocationHandler serves /v1/locations.
type LocationHandler struct {
	store  LocationStore
	logger zerolog.Logger
}

// NewLocationHandler creates a LocationHandler.
func NewLocationHandler(store LocationStore, logger zerolog.Logger) *LocationHandler {
	return &LocationHandler{store: store, logger: logger.With().Str("handler", "location").Logger()}
}

// Record handles POST /v1/locations. The sample is accepted even when
// persistence is throttled or fails.
func (h *LocationHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req models.LocationSampleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.store.Record(r.Context(), GetUserID(r.Context()), req.Sample())
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("failed to record location")
		response.InternalError(w, r, "location could not be recorded")
		return
	}

	resp := models.RecordLocationResponse{
		Latest:    models.LatestFrom(result.Latest),
		Persisted: result.Persisted,
		Throttled: result.Throttled,
	}
	if result.Location != nil {
		stored := models.StoredFrom(result.Location)
		resp.Stored = &stored
	}
	response.Accepted(w, r, "/v1/locations/latest", resp)
}

// Share handles POST /v1/locations/share, a manual check-in that bypasses
// the throttle and must be stored.
func (h *LocationHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req models.LocationSampleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	stored, err := h.store.Share(r.Context(), GetUserID(r.Context()), req.Sample())
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("failed to share location")
		response.ServiceUnavailable(w, r, "location could not be shared, try again")
		return
	}
	response.Created(w, r, "/v1/locations/latest", models.StoredFrom(stored))
}

// Latest handles GET /v1/locations/latest.
func (h *LocationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	latest, ok := h.store.Latest(r.Context(), GetUserID(r.Context()))
	if !ok {
		response.NotFound(w, r, "no location recorded yet")
		return
	}
	response.JSON(w, r, http.StatusOK, models.LatestFrom(latest))
}
