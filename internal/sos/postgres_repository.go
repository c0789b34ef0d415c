package sos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of the SOS repositories.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var (
	_ IncidentRepository     = (*PostgresRepository)(nil)
	_ ContactRepository      = (*PostgresRepository)(nil)
	_ NotificationRepository = (*PostgresRepository)(nil)
)

// NewPostgresRepository creates a new PostgreSQL SOS repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts an active incident.
func (r *PostgresRepository) Create(ctx context.Context, inc *Incident) error {
	query := `
		INSERT INTO sos_incidents (user_id, status, trigger_latitude, trigger_longitude, trigger_address, description)
		VALUES ($1, 'active', $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		inc.UserID, inc.TriggerCoordinate.Lat, inc.TriggerCoordinate.Lng,
		inc.TriggerAddress, inc.Description,
	).Scan(&inc.ID, &inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	inc.Status = StatusActive
	return nil
}

// Get retrieves an incident.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Incident, error) {
	query := `
		SELECT id, user_id, status, trigger_latitude, trigger_longitude,
			trigger_address, description, created_at, resolved_at
		FROM sos_incidents
		WHERE id = $1
	`
	var inc Incident
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inc.ID, &inc.UserID, &inc.Status,
		&inc.TriggerCoordinate.Lat, &inc.TriggerCoordinate.Lng,
		&inc.TriggerAddress, &inc.Description, &inc.CreatedAt, &inc.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &inc, nil
}

// Resolve marks an incident resolved. An already resolved incident keeps
// its original resolved_at.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sos_incidents
		SET status = 'resolved', resolved_at = COALESCE(resolved_at, $2)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// ResolveActiveForUser resolves every active incident of a user.
func (r *PostgresRepository) ResolveActiveForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	query := `
		UPDATE sos_incidents
		SET status = 'resolved', resolved_at = $2
		WHERE user_id = $1 AND status = 'active'
	`
	tag, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("resolve user incidents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResolveActiveBefore resolves active incidents created before cutoff.
func (r *PostgresRepository) ResolveActiveBefore(ctx context.Context, cutoff, at time.Time) (int, error) {
	query := `
		UPDATE sos_incidents
		SET status = 'resolved', resolved_at = $2
		WHERE status = 'active' AND created_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("resolve stale incidents: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// AppendLogs inserts audit log rows in one batch.
func (r *PostgresRepository) AppendLogs(ctx context.Context, logs []IncidentLog) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		var meta []byte
		if l.Metadata != nil {
			b, err := json.Marshal(l.Metadata)
			if err != nil {
				return fmt.Errorf("marshal log metadata: %w", err)
			}
			meta = b
		}
		batch.Queue(`
			INSERT INTO sos_incident_logs (incident_id, actor_type, action, log_type, message, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.IncidentID, l.ActorType, l.Action, l.LogType, l.Message, meta)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert incident logs: %w", err)
	}
	return nil
}

// ListForUser returns up to limit contacts, primary first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Contact, error) {
	query := `
		SELECT id, user_id, name, phone, email, is_primary
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY is_primary DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

// InsertNotifications writes notification rows in one statement batch.
func (r *PostgresRepository) InsertNotifications(ctx context.Context, rows []Notification) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range rows {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
		batch.Queue(`
			INSERT INTO notifications (user_id, type, title, message, data, is_read, send_push, send_email, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, n.UserID, n.Type, n.Title, n.Message, data, n.IsRead, n.SendPush, n.SendEmail, n.Priority)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}
