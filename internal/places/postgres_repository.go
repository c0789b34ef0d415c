package places

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL accommodation repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// List returns the catalog, newest first.
func (r *PostgresRepository) List(ctx context.Context, city string) ([]*Accommodation, error) {
	query := `
		SELECT id, name, address, city, latitude, longitude, safety_features, rating, created_at
		FROM accommodations
		WHERE $1 = '' OR lower(city) = lower($1)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, city)
	if err != nil {
		return nil, fmt.Errorf("list accommodations: %w", err)
	}
	defer rows.Close()

	var out []*Accommodation
	for rows.Next() {
		var (
			a        Accommodation
			lat, lng *float64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Address, &a.City, &lat, &lng, &a.SafetyFeatures, &a.Rating, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan accommodation: %w", err)
		}
		if lat != nil && lng != nil {
			a.Coordinate = &geo.Coordinate{Lat: *lat, Lng: *lng}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accommodations: %w", err)
	}
	return out, nil
}
