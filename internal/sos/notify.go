package sos

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers an SOS message to emergency contacts.
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest) (*NotifyResponse, error)
}

// NotifyService records one urgent notification per contact. Delivery
// channels (push, email) pick the rows up from the notifications table.
type NotifyService struct {
	repo   NotificationRepository
	logger zerolog.Logger
}

var _ Notifier = (*NotifyService)(nil)

// NewNotifyService creates a NotifyService.
func NewNotifyService(repo NotificationRepository, logger zerolog.Logger) *NotifyService {
	return &NotifyService{
		repo:   repo,
		logger: logger.With().Str("component", "sos_notify").Logger(),
	}
}

// Notify validates req and stores the notifications. A store failure is
// reported as a warning; the contacts are still returned as delivered.
func (s *NotifyService) Notify(ctx context.Context, req NotifyRequest) (*NotifyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	message := NotifyMessage(req.Location)
	rows := make([]Notification, 0, len(req.Contacts))
	delivered := make([]DeliveredContact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		data := map[string]any{
			"contact_id":  c.ID,
			"phone":       c.Phone,
			"email":       c.Email,
			"incident_id": req.IncidentID,
		}
		rows = append(rows, Notification{
			UserID:    req.UserID,
			Type:      "emergency",
			Title:     "SOS sent to " + c.Name,
			Message:   message,
			Data:      data,
			IsRead:    false,
			SendPush:  true,
			SendEmail: c.Email != nil && *c.Email != "",
			Priority:  "urgent",
		})
		delivered = append(delivered, DeliveredContact{ID: c.ID})
	}

	if err := s.repo.InsertNotifications(ctx, rows); err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Int("contacts", len(rows)).Msg("failed to store sos notifications")
		return &NotifyResponse{Delivered: delivered, Warning: WarnNotificationStore}, nil
	}

	s.logger.Info().Str("user_id", req.UserID).Int("contacts", len(rows)).Msg("sos notifications stored")
	return &NotifyResponse{Delivered: delivered}, nil
}
