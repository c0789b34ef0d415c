package digitalid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexxeth/tourist-safety-shield/internal/database"
)

// PostgresRepository reads and writes the digital_ids table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const idColumns = `id, user_id, tss_id, issued_at, expires_at, status,
	verification_level, last_verification, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, d *DigitalID) error {
	query := `
		INSERT INTO digital_ids (user_id, tss_id, issued_at, expires_at, status, verification_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $3)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		d.UserID, d.TSSID, d.IssuedAt, d.ExpiresAt, d.Status, d.VerificationLevel,
	).Scan(&d.ID)
	if database.IsCode(err, database.CodeUniqueViolation) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create digital id: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (*DigitalID, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+idColumns+` FROM digital_ids WHERE user_id = $1`, userID))
}

func (r *PostgresRepository) GetByTSSID(ctx context.Context, tssID string) (*DigitalID, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+idColumns+` FROM digital_ids WHERE tss_id = $1`, tssID))
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, tssID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE digital_ids SET last_verification = $2, updated_at = $2 WHERE tss_id = $1`, tssID, at)
	if err != nil {
		return fmt.Errorf("mark digital id verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scan(row pgx.Row) (*DigitalID, error) {
	var (
		d      DigitalID
		status string
		level  string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.TSSID, &d.IssuedAt, &d.ExpiresAt, &status,
		&level, &d.LastVerification, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("digital id: %w", err)
	}
	d.Status = Status(status)
	d.VerificationLevel = Level(level)
	return &d, nil
}
