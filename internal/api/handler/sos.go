package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/api/response"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
)

// WarnResolveFailed is added to a disable response whose incident could not
// be closed in storage.
const WarnResolveFailed = "incident record could not be resolved"

// SOSController drives per-user SOS sessions.
type SOSController interface {
	Press(ctx context.Context, userID string) (sos.State, error)
	Cancel(userID string) (sos.State, error)
	Disable(ctx context.Context, userID string) (sos.State, error)
	State(userID string) (sos.State, error)
	Events(ctx context.Context, userID string) <-chan sos.State
}

// SOSHandler serves /v1/sos.
type SOSHandler struct {
	sessions SOSController
	notifier sos.Notifier
	logger   zerolog.Logger
}

// NewSOSHandler creates an SOSHandler. notifier backs the service-to-service
// notify endpoint.
func NewSOSHandler(sessions SOSController, notifier sos.Notifier, logger zerolog.Logger) *SOSHandler {
	return &SOSHandler{sessions: sessions, notifier: notifier, logger: logger.With().Str("handler", "sos").Logger()}
}

// Press handles POST /v1/sos/press. Pressing while a countdown or SOS is
// already running returns the current state unchanged.
func (h *SOSHandler) Press(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Press(r.Context(), GetUserID(r.Context()))
	h.writeState(w, r, state, err)
}

// Cancel handles POST /v1/sos/cancel.
func (h *SOSHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Cancel(GetUserID(r.Context()))
	h.writeState(w, r, state, err)
}

// Disable handles POST /v1/sos/disable. The session is reset even when the
// incident update fails; the failure is reported as a warning.
func (h *SOSHandler) Disable(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Disable(r.Context(), GetUserID(r.Context()))
	if err != nil && !errors.Is(err, sos.ErrMissingUser) {
		h.logger.Error().Err(err).Msg("sos disable could not resolve incident")
		state.Warnings = append(state.Warnings, WarnResolveFailed)
		err = nil
	}
	h.writeState(w, r, state, err)
}

// State handles GET /v1/sos/state.
func (h *SOSHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.State(GetUserID(r.Context()))
	h.writeState(w, r, state, err)
}

// Stream handles GET /v1/sos/stream, pushing session states as server-sent
// events until the client goes away.
func (h *SOSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "missing user")
		return
	}
	streamEvents(w, r, "state", h.sessions.Events(r.Context(), userID))
}

// Notify handles POST /v1/sos/notify. Invalid payloads are rejected with a
// 400 and nothing is stored.
func (h *SOSHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req sos.NotifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	resp, err := h.notifier.Notify(r.Context(), req)
	if err != nil {
		if errors.Is(err, sos.ErrInvalidNotifyRequest) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("notify failed")
		response.InternalError(w, r, "contacts could not be notified")
		return
	}
	response.JSON(w, r, http.StatusOK, resp)
}

func (h *SOSHandler) writeState(w http.ResponseWriter, r *http.Request, state sos.State, err error) {
	if err != nil {
		if errors.Is(err, sos.ErrMissingUser) {
			response.Unauthorized(w, r, "missing user")
			return
		}
		h.logger.Error().Err(err).Msg("sos request failed")
		response.InternalError(w, r, "sos request failed")
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}
