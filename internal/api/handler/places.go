package handler

import (
	"context"
	"net/http"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/places"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const maxHelpRadiusKm = 50

// PlaceFinder ranks catalog entries against an origin.
type PlaceFinder interface {
	Nearby(ctx context.Context, origin *geo.Coordinate, city string, limit int) []places.NearbyEntity
	HelpPoints(ctx context.Context, origin *geo.Coordinate, city string, radiusKm float64) []places.NearbyEntity
}

// PlacesHandler serves /v1/places.
type PlacesHandler struct {
	finder PlaceFinder
}

// NewPlacesHandler creates a PlacesHandler.
func NewPlacesHandler(finder PlaceFinder) *PlacesHandler {
	return &PlacesHandler{finder: finder}
}

// Nearby handles GET /v1/places/nearby?lat=&lng=&city=&limit=.
func (h *PlacesHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	origin := q.origin(false)
	city := q.str("city")
	limit := q.intOr("limit", places.DefaultNearbyLimit, 1, 50)
	if !q.ok(w) {
		return
	}

	response.JSON(w, r, http.StatusOK, models.NearbyFrom(h.finder.Nearby(r.Context(), origin, city, limit)))
}

// Help handles GET /v1/places/help?lat=&lng=&city=&radius_km=. Curated
// help points are only ranked when an origin is given.
func (h *PlacesHandler) Help(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	origin := q.origin(false)
	city := q.str("city")
	radius := q.floatOr("radius_km", places.DefaultHelpRadiusKm, 0.1, maxHelpRadiusKm)
	if !q.ok(w) {
		return
	}

	resp := models.HelpResponse{
		Catalog: models.NearbyFrom(h.finder.HelpPoints(r.Context(), origin, city, radius)),
		Curated: []models.HelpPoint{},
	}
	if origin != nil {
		resp.Curated = models.HelpPointsFrom(places.NearestStatic(*origin, city, radius))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Popular handles GET /v1/places/popular?lat=&lng=&city=&limit=.
func (h *PlacesHandler) Popular(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	origin := q.origin(false)
	city := q.str("city")
	limit := q.intOr("limit", places.DefaultPopularLimit, 1, 20)
	if !q.ok(w) {
		return
	}

	response.JSON(w, r, http.StatusOK, models.PopularFrom(places.PopularPlaces(origin, city, limit)))
}
