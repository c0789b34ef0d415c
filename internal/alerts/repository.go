package alerts

import "context"

// Repository reads and writes safety alerts.
type Repository interface {
	// List returns alerts matching q, newest first, undated alerts first.
	List(ctx context.Context, q Query) ([]*Alert, error)

	// Create inserts an alert.
	Create(ctx context.Context, a *Alert) error

	// Update replaces an alert.
	Update(ctx context.Context, a *Alert) error

	// Delete removes an alert.
	Delete(ctx context.Context, id string) error
}
