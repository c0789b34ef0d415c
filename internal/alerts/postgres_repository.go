package alerts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// List returns matching alerts, newest first.
func (r *PostgresRepository) List(ctx context.Context, q Query) ([]*Alert, error) {
	query := `
		SELECT id, severity, city, description, valid_from
		FROM safety_alerts
		WHERE ($1 = '' OR lower(city) = lower($1))
		  AND (valid_from IS NULL OR $2::timestamptz IS NULL OR valid_from >= $2)
		ORDER BY valid_from DESC NULLS FIRST, id
	`
	args := []any{q.City, nil}
	if !q.Since.IsZero() {
		args[1] = q.Since
	}
	if q.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, q.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list safety alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		var (
			a        Alert
			severity string
		)
		if err := rows.Scan(&a.ID, &severity, &a.City, &a.Description, &a.ValidFrom); err != nil {
			return nil, fmt.Errorf("scan safety alert: %w", err)
		}
		a.Severity = Severity(severity)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list safety alerts: %w", err)
	}
	return out, nil
}

// Create inserts an alert; the id is generated by the database when empty.
func (r *PostgresRepository) Create(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO safety_alerts (id, severity, city, description, valid_from)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.pool.QueryRow(ctx, query, a.ID, string(a.Severity), a.City, a.Description, a.ValidFrom).Scan(&a.ID); err != nil {
		return fmt.Errorf("create safety alert: %w", err)
	}
	return nil
}

// Update replaces an alert.
func (r *PostgresRepository) Update(ctx context.Context, a *Alert) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE safety_alerts SET severity = $2, city = $3, description = $4, valid_from = $5
		WHERE id = $1
	`, a.ID, string(a.Severity), a.City, a.Description, a.ValidFrom)
	if err != nil {
		return fmt.Errorf("update safety alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Delete removes an alert.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM safety_alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete safety alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
