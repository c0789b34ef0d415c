package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL profile repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const profileColumns = `user_id, safety_score, COALESCE(location_sharing, true), updated_at`

// Get retrieves the profile of a user.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 LIMIT 1`
	return r.scan(r.pool.QueryRow(ctx, query, userID))
}

// SetSafetyScore stores the score.
func (r *PostgresRepository) SetSafetyScore(ctx context.Context, userID string, score int) (*Profile, error) {
	query := `
		INSERT INTO profiles (user_id, safety_score, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET safety_score = EXCLUDED.safety_score, updated_at = now()
		RETURNING ` + profileColumns
	return r.scan(r.pool.QueryRow(ctx, query, userID, score))
}

// SetLocationSharing stores the location sharing preference.
func (r *PostgresRepository) SetLocationSharing(ctx context.Context, userID string, enabled bool) (*Profile, error) {
	query := `
		UPDATE profiles SET location_sharing = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return r.scan(r.pool.QueryRow(ctx, query, userID, enabled))
}

func (r *PostgresRepository) scan(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.UserID, &p.SafetyScore, &p.LocationSharing, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile: %w", err)
	}
	return &p, nil
}
