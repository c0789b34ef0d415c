package handler

import (
	"context"
	"net/http"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
)

const defaultSearchLimit = 5

// Geocoder resolves places. Failures degrade to empty results.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) geocoding.Place
	ForwardGeocode(ctx context.Context, query string, limit int) []geocoding.Result
}

// GeocodeHandler serves /v1/geocode.
type GeocodeHandler struct {
	geocoder Geocoder
}

// NewGeocodeHandler creates a GeocodeHandler.
func NewGeocodeHandler(geocoder Geocoder) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder}
}

// Reverse handles GET /v1/geocode/reverse?lat=&lng=.
func (h *GeocodeHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	origin := q.origin(true)
	if !q.ok(w) {
		return
	}

	place := h.geocoder.ReverseGeocode(r.Context(), origin.Lat, origin.Lng)
	w.Header().Set("Cache-Control", "private, max-age=300")
	response.JSON(w, r, http.StatusOK, models.ReverseGeocodeResponse{Place: place, Label: place.Label()})
}

// Search handles GET /v1/geocode/search?q=&limit=. A blank query returns no
// results.
func (h *GeocodeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	query := q.str("q")
	limit := q.intOr("limit", defaultSearchLimit, 1, 20)
	if !q.ok(w) {
		return
	}

	results := h.geocoder.ForwardGeocode(r.Context(), query, limit)
	if results == nil {
		results = []geocoding.Result{}
	}
	response.JSON(w, r, http.StatusOK, models.SearchResponse{Results: results})
}
