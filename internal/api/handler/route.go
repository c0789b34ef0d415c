package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
)

// RouteSuggester scores safer routes.
type RouteSuggester interface {
	Suggest(ctx context.Context, req routing.SuggestRequest) (*routing.Suggestion, error)
}

// RouteHandler serves /v1/routes.
type RouteHandler struct {
	routes RouteSuggester
	logger zerolog.Logger
}

// NewRouteHandler creates a RouteHandler.
func NewRouteHandler(routes RouteSuggester, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{routes: routes, logger: logger.With().Str("handler", "route").Logger()}
}

// Safer handles POST /v1/routes/safer.
func (h *RouteHandler) Safer(w http.ResponseWriter, r *http.Request) {
	var req models.SaferRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	suggestion, err := h.routes.Suggest(r.Context(), routing.SuggestRequest{
		Origin:      req.Origin.Coordinate(),
		Destination: req.Destination.Coordinate(),
		City:        req.City,
	})
	if err != nil {
		if errors.Is(err, routing.ErrInvalidCoordinates) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("failed to suggest routes")
		response.InternalError(w, r, "routes could not be computed")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.JSON(w, r, http.StatusOK, suggestion)
}
