package sos

import (
	"context"
	"time"
)

// IncidentRepository persists incidents and their audit logs.
type IncidentRepository interface {
	// Create inserts an active incident and sets its ID and CreatedAt.
	Create(ctx context.Context, inc *Incident) error

	// Get retrieves an incident.
	Get(ctx context.Context, id string) (*Incident, error)

	// Resolve marks one incident resolved. Resolving a resolved incident is a no-op.
	Resolve(ctx context.Context, id string, at time.Time) error

	// ResolveActiveForUser resolves every active incident of a user.
	ResolveActiveForUser(ctx context.Context, userID string, at time.Time) (int, error)

	// ResolveActiveBefore resolves active incidents created before cutoff.
	ResolveActiveBefore(ctx context.Context, cutoff, at time.Time) (int, error)

	// AppendLogs inserts audit log rows.
	AppendLogs(ctx context.Context, logs []IncidentLog) error
}

// ContactRepository reads emergency contacts.
type ContactRepository interface {
	// ListForUser returns up to limit contacts, primary contacts first.
	ListForUser(ctx context.Context, userID string, limit int) ([]Contact, error)
}

// NotificationRepository stores outgoing notifications.
type NotificationRepository interface {
	InsertNotifications(ctx context.Context, rows []Notification) error
}
