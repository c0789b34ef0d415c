package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexxeth/tourist-safety-shield/internal/database"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL location repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const (
	fullColumns = `id, user_id, latitude, longitude, accuracy_meters, altitude_meters,
		area_name, city, checkin_type, created_at`
	minimalColumns = `id, user_id, latitude, longitude, created_at`
)

// insertStatement builds the INSERT for a payload. Only the columns of the
// variant are named so that older schemas accept the narrower shapes.
func insertStatement(variant SchemaVariant, p InsertPayload) (string, []any) {
	cols := []string{"user_id", "latitude", "longitude"}
	args := []any{p.UserID, p.Latitude, p.Longitude}

	switch variant {
	case VariantFull:
		cols = append(cols, "accuracy_meters", "altitude_meters", "area_name", "city", "checkin_type")
		args = append(args, p.AccuracyMeters, p.AltitudeMeters, p.AreaName, p.City, string(p.CheckinType))
	case VariantArea:
		cols = append(cols, "area_name")
		args = append(args, p.AreaName)
	case VariantCity:
		cols = append(cols, "city")
		args = append(args, p.City)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO user_locations (%s) VALUES (%s) RETURNING id, created_at",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	return query, args
}

// Insert writes one row using the column set of variant.
func (r *PostgresRepository) Insert(ctx context.Context, variant SchemaVariant, p InsertPayload) (*StoredLocation, error) {
	query, args := insertStatement(variant, p)

	loc := &StoredLocation{
		UserID:      p.UserID,
		Coordinate:  coordinateOf(p),
		CheckinType: p.CheckinType,
	}
	if variant == VariantFull {
		loc.AccuracyMeters = p.AccuracyMeters
		loc.AltitudeMeters = p.AltitudeMeters
	}
	loc.AreaName = p.AreaName
	loc.City = p.City

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&loc.ID, &loc.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert %s location: %w", variant, err)
	}
	return loc, nil
}

// Latest returns the newest row of a user.
func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*StoredLocation, error) {
	rows, err := r.ListRecent(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// ListRecent returns rows of a user, newest first. Schemas without the
// optional columns are read through the minimal column set.
func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*StoredLocation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + fullColumns + ` FROM user_locations
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	out, err := r.query(ctx, query, scanFull, userID, limit)
	if database.IsCode(err, database.CodeUndefinedColumn) {
		query = `SELECT ` + minimalColumns + ` FROM user_locations
			WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		out, err = r.query(ctx, query, scanMinimal, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// InstallAreaCheck adds the area_checked_at column used by the backfill
// to skip rows the geocoder could not name.
func (r *PostgresRepository) InstallAreaCheck(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx,
		`ALTER TABLE user_locations ADD COLUMN IF NOT EXISTS area_checked_at TIMESTAMPTZ`); err != nil {
		return fmt.Errorf("add area_checked_at: %w", err)
	}
	return nil
}

// ListMissingArea returns rows with neither area nor city that were never
// checked or were checked before checkedBefore.
func (r *PostgresRepository) ListMissingArea(ctx context.Context, checkedBefore time.Time, limit int) ([]*StoredLocation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + fullColumns + ` FROM user_locations
		WHERE area_name IS NULL AND city IS NULL
			AND (area_checked_at IS NULL OR area_checked_at < $1)
		ORDER BY area_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $2`

	out, err := r.query(ctx, query, scanFull, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list locations without area: %w", err)
	}
	return out, nil
}

// MarkAreaChecked stamps a row whose lookup named no place.
func (r *PostgresRepository) MarkAreaChecked(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_locations SET area_checked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark location area checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateArea sets the area and city of a row.
func (r *PostgresRepository) UpdateArea(ctx context.Context, id string, area, city *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_locations SET area_name = $2, city = $3 WHERE id = $1`, id, area, city)
	if err != nil {
		return fmt.Errorf("update location area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scanFunc func(pgx.Row) (*StoredLocation, error)

func (r *PostgresRepository) query(ctx context.Context, query string, scan scanFunc, args ...any) ([]*StoredLocation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredLocation
	for rows.Next() {
		loc, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanFull(row pgx.Row) (*StoredLocation, error) {
	var (
		loc     StoredLocation
		checkin *string
	)
	err := row.Scan(
		&loc.ID,
		&loc.UserID,
		&loc.Coordinate.Lat,
		&loc.Coordinate.Lng,
		&loc.AccuracyMeters,
		&loc.AltitudeMeters,
		&loc.AreaName,
		&loc.City,
		&checkin,
		&loc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	loc.CheckinType = CheckinAutomatic
	if checkin != nil {
		loc.CheckinType = CheckinType(*checkin)
	}
	return &loc, nil
}

func scanMinimal(row pgx.Row) (*StoredLocation, error) {
	var loc StoredLocation
	err := row.Scan(&loc.ID, &loc.UserID, &loc.Coordinate.Lat, &loc.Coordinate.Lng, &loc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	loc.CheckinType = CheckinAutomatic
	return &loc, nil
}
