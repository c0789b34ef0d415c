package location

import (
	"context"
	"time"
)

// Repository persists user_locations rows.
type Repository interface {
	// Insert writes one row using the column set of variant.
	Insert(ctx context.Context, variant SchemaVariant, p InsertPayload) (*StoredLocation, error)

	// Latest returns the newest row of a user or ErrNotFound.
	Latest(ctx context.Context, userID string) (*StoredLocation, error)

	// ListRecent returns up to limit rows of a user, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*StoredLocation, error)

	// ListMissingArea returns up to limit rows with neither area nor city
	// that were never checked, or last checked before checkedBefore. Never
	// checked rows come first, then oldest first.
	ListMissingArea(ctx context.Context, checkedBefore time.Time, limit int) ([]*StoredLocation, error)

	// MarkAreaChecked records a lookup that named no place for a row.
	MarkAreaChecked(ctx context.Context, id string, at time.Time) error

	// UpdateArea sets the area and city of a row.
	UpdateArea(ctx context.Context, id string, area, city *string) error
}
