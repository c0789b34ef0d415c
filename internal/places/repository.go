package places

import "context"

// Repository reads the accommodation catalog.
type Repository interface {
	// List returns the catalog in storage order (newest first), restricted to
	// city when it is non-empty. City comparison is case-insensitive.
	List(ctx context.Context, city string) ([]*Accommodation, error)
}
