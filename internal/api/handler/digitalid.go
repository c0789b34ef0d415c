package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/digitalid"
)

// DigitalIDs issues and verifies tourist digital IDs.
type DigitalIDs interface {
	Get(ctx context.Context, userID string) (*digitalid.Card, error)
	Issue(ctx context.Context, userID string) (*digitalid.Card, bool, error)
	Verify(ctx context.Context, tssID string) (*digitalid.Card, error)
}

// DigitalIDHandler serves /v1/digital-id.
type DigitalIDHandler struct {
	ids    DigitalIDs
	logger zerolog.Logger
}

// NewDigitalIDHandler creates a DigitalIDHandler.
func NewDigitalIDHandler(ids DigitalIDs, logger zerolog.Logger) *DigitalIDHandler {
	return &DigitalIDHandler{ids: ids, logger: logger.With().Str("handler", "digital_id").Logger()}
}

// Get handles GET /v1/digital-id.
func (h *DigitalIDHandler) Get(w http.ResponseWriter, r *http.Request) {
	card, err := h.ids.Get(r.Context(), GetUserID(r.Context()))
	if errors.Is(err, digitalid.ErrNotFound) {
		response.NotFound(w, r, "no digital id issued yet")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read digital id")
		response.ServiceUnavailable(w, r, "digital ids are unavailable")
		return
	}
	response.JSON(w, r, http.StatusOK, card)
}

// Issue handles POST /v1/digital-id: 201 for a new ID, 200 when the user
// already holds one.
func (h *DigitalIDHandler) Issue(w http.ResponseWriter, r *http.Request) {
	card, created, err := h.ids.Issue(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue digital id")
		response.ServiceUnavailable(w, r, "digital ids are unavailable")
		return
	}
	if created {
		response.Created(w, r, "/v1/digital-id", card)
		return
	}
	response.JSON(w, r, http.StatusOK, card)
}

// Verify handles GET /v1/digital-id/verify?tssId=.
func (h *DigitalIDHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tssID := newQueryParams(r).str("tssId")
	card, err := h.ids.Verify(r.Context(), tssID)
	switch {
	case errors.Is(err, digitalid.ErrInvalidID):
		response.BadRequest(w, r, "invalid digital id", []models.FieldError{
			{Field: "tssId", Message: "must match TSS-YYYY-XXXXXX", Code: "INVALID_FORMAT"},
		})
	case errors.Is(err, digitalid.ErrNotFound):
		response.NotFound(w, r, "unknown digital id")
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to verify digital id")
		response.ServiceUnavailable(w, r, "digital ids are unavailable")
	default:
		response.JSON(w, r, http.StatusOK, card)
	}
}
