// Package sos implements the SOS activation lifecycle: countdown,
// incident record, contact notification, audit logs and resolution.
package sos

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Lifecycle timings.
const (
	DefaultCountdown   = 5
	DefaultTick        = time.Second
	DefaultDwell       = 30 * time.Second
	DefaultContactsMax = 5
)

// Errors.
var (
	ErrIncidentNotFound     = errors.New("sos incident not found")
	ErrInvalidNotifyRequest = errors.New("invalid notify payload")
	ErrMissingUser          = errors.New("user id is required")
)

// Warnings surfaced to the user during activation. They never revert the
// active state.
const (
	WarnNoLocation        = "location unavailable; contacts will still be notified"
	WarnIncidentFailed    = "incident record could not be created"
	WarnNoContacts        = "no contacts"
	WarnContactsFailed    = "emergency contacts could not be loaded"
	WarnNotifyFailed      = "failed to notify contacts"
	WarnPartialDelivery   = "some contacts could not be notified"
	WarnNotificationStore = "DB insert failed"
)

// IncidentStatus of an SOS incident.
type IncidentStatus string

const (
	StatusActive    IncidentStatus = "active"
	StatusResolved  IncidentStatus = "resolved"
	StatusCancelled IncidentStatus = "cancelled"
)

// Incident is an sos_incidents row.
type Incident struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Status            IncidentStatus `json:"status"`
	TriggerCoordinate geo.Coordinate `json:"-"`
	TriggerAddress    *string        `json:"trigger_address,omitempty"`
	Description       *string        `json:"description,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
}

// Contact is an emergency_contacts row.
type Contact struct {
	ID        string
	UserID    string
	Name      string
	Phone     string
	Email     *string
	IsPrimary bool
}

// Log actor, action and type values.
const (
	ActorSystem = "system"
	ActorUser   = "user"

	ActionContactNotified = "contact_notified"
	ActionSOSDisabled     = "sos_disabled"

	LogContactAttempt = "contact_attempt"
	LogUserAction     = "user_action"
)

// IncidentLog is an sos_incident_logs row.
type IncidentLog struct {
	ID         string
	IncidentID string
	ActorType  string
	Action     string
	LogType    string
	Message    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Notification is a notifications row written for one contact.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	IsRead    bool
	SendPush  bool
	SendEmail bool
	Priority  string
	CreatedAt time.Time
}

// NotifyContact is a contact in a notify request.
type NotifyContact struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Email *string `json:"email,omitempty"`
}

// NotifyLocation is the optional location of a notify request.
type NotifyLocation struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	AreaName *string  `json:"areaName,omitempty"`
}

// NotifyRequest is the body of the notify endpoint.
type NotifyRequest struct {
	UserID     string          `json:"userId"`
	IncidentID *string         `json:"incidentId,omitempty"`
	Contacts   []NotifyContact `json:"contacts"`
	Location   *NotifyLocation `json:"location,omitempty"`
}

// Validate checks the required fields.
func (r NotifyRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidNotifyRequest)
	}
	if len(r.Contacts) == 0 {
		return fmt.Errorf("%w: at least one contact is required", ErrInvalidNotifyRequest)
	}
	for i, c := range r.Contacts {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("%w: contact %d needs id and name", ErrInvalidNotifyRequest, i)
		}
	}
	return nil
}

// DeliveredContact identifies a notified contact.
type DeliveredContact struct {
	ID string `json:"id"`
}

// NotifyResponse is the result of a notify call.
type NotifyResponse struct {
	Delivered []DeliveredContact `json:"delivered,omitempty"`
	Warning   string             `json:"warning,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// NotifyMessage builds the text sent to every contact.
func NotifyMessage(loc *NotifyLocation) string {
	area, lat, lng := "Unknown", "N/A", "N/A"
	if loc != nil {
		if loc.AreaName != nil && *loc.AreaName != "" {
			area = *loc.AreaName
		}
		if loc.Lat != nil {
			lat = strconv.FormatFloat(*loc.Lat, 'f', -1, 64)
		}
		if loc.Lng != nil {
			lng = strconv.FormatFloat(*loc.Lng, 'f', -1, 64)
		}
	}
	return "SOS Alert: The user needs help. Location: " + area +
		" (lat: " + lat + ", lng: " + lng + "). Please reach out immediately."
}

// Phase of a user's SOS session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCountingDown Phase = "counting_down"
	PhaseActive       Phase = "active"
	PhaseResolved     Phase = "resolved"
)

// State is a snapshot of a session.
type State struct {
	UserID      string    `json:"userId"`
	Phase       Phase     `json:"phase"`
	Countdown   int       `json:"countdown"`
	IncidentID  *string   `json:"incidentId,omitempty"`
	ActivatedAt time.Time `json:"activatedAt,omitempty"`
	Delivered   []string  `json:"delivered,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}
