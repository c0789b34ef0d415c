package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// InMemoryRepository is an in-memory Repository. Inserts are published to
// the optional realtime publisher the way database triggers would.
type InMemoryRepository struct {
	mu        sync.RWMutex
	rows      []*StoredLocation
	failures  map[SchemaVariant]error
	inserts   []SchemaVariant
	publisher realtime.Publisher
	now       func() time.Time
	checked   map[string]time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository. publisher may be nil.
func NewInMemoryRepository(publisher realtime.Publisher) *InMemoryRepository {
	return &InMemoryRepository{
		failures:  make(map[SchemaVariant]error),
		checked:   make(map[string]time.Time),
		publisher: publisher,
		now:       time.Now,
	}
}

// SetClock overrides the creation timestamp source.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailInsert makes inserts with variant return err. A nil err clears it.
func (r *InMemoryRepository) FailInsert(variant SchemaVariant, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, variant)
		return
	}
	r.failures[variant] = err
}

// Attempts returns the variants of every insert attempted so far.
func (r *InMemoryRepository) Attempts() []SchemaVariant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SchemaVariant(nil), r.inserts...)
}

// Insert stores a row.
func (r *InMemoryRepository) Insert(ctx context.Context, variant SchemaVariant, p InsertPayload) (*StoredLocation, error) {
	r.mu.Lock()
	r.inserts = append(r.inserts, variant)
	if err, ok := r.failures[variant]; ok {
		r.mu.Unlock()
		return nil, err
	}
	loc := &StoredLocation{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Coordinate:     coordinateOf(p),
		AccuracyMeters: p.AccuracyMeters,
		AltitudeMeters: p.AltitudeMeters,
		AreaName:       p.AreaName,
		City:           p.City,
		CheckinType:    p.CheckinType,
		CreatedAt:      r.now(),
	}
	if loc.CheckinType == "" {
		loc.CheckinType = CheckinAutomatic
	}
	cpy := *loc
	r.rows = append(r.rows, &cpy)
	r.mu.Unlock()

	if r.publisher != nil {
		if evt, err := realtime.NewEvent(realtime.TableUserLocations, realtime.Insert, toRow(loc), loc.CreatedAt); err == nil {
			_ = r.publisher.Publish(ctx, evt)
		}
	}
	return loc, nil
}

// Latest returns the newest row of a user.
func (r *InMemoryRepository) Latest(_ context.Context, userID string) (*StoredLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *StoredLocation
	for _, l := range r.rows {
		if l.UserID != userID {
			continue
		}
		if newest == nil || !l.CreatedAt.Before(newest.CreatedAt) {
			newest = l
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cpy := *newest
	return &cpy, nil
}

// ListRecent returns rows of a user, newest first.
func (r *InMemoryRepository) ListRecent(_ context.Context, userID string, limit int) ([]*StoredLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*StoredLocation
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].UserID == userID {
			cpy := *r.rows[i]
			out = append(out, &cpy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMissingArea returns rows without area or city that are due for a
// lookup. Never checked rows come first, each group in insertion order.
func (r *InMemoryRepository) ListMissingArea(_ context.Context, checkedBefore time.Time, limit int) ([]*StoredLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fresh, retry []*StoredLocation
	for _, l := range r.rows {
		if l.AreaName != nil || l.City != nil {
			continue
		}
		cpy := *l
		at, seen := r.checked[l.ID]
		switch {
		case !seen:
			fresh = append(fresh, &cpy)
		case at.Before(checkedBefore):
			retry = append(retry, &cpy)
		}
	}
	sort.SliceStable(retry, func(i, j int) bool { return r.checked[retry[i].ID].Before(r.checked[retry[j].ID]) })

	out := append(fresh, retry...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkAreaChecked records an unresolved lookup for a row.
func (r *InMemoryRepository) MarkAreaChecked(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.rows {
		if l.ID == id {
			r.checked[id] = at
			return nil
		}
	}
	return ErrNotFound
}

// UpdateArea sets the area and city of a row.
func (r *InMemoryRepository) UpdateArea(_ context.Context, id string, area, city *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.rows {
		if l.ID == id {
			l.AreaName = area
			l.City = city
			return nil
		}
	}
	return ErrNotFound
}
