package alerts

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// InMemoryRepository is an in-memory Repository that publishes every write
// to an optional realtime publisher.
type InMemoryRepository struct {
	mu        sync.RWMutex
	alerts    map[string]*Alert
	err       error
	publisher realtime.Publisher
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository. publisher may be nil.
func NewInMemoryRepository(publisher realtime.Publisher) *InMemoryRepository {
	return &InMemoryRepository{alerts: make(map[string]*Alert), publisher: publisher}
}

// SetError makes List fail with err until cleared with nil.
func (r *InMemoryRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// List returns matching alerts, newest first.
func (r *InMemoryRepository) List(_ context.Context, q Query) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	var out []*Alert
	for _, a := range r.alerts {
		if !a.InCity(q.City) {
			continue
		}
		if a.ValidFrom != nil && !q.Since.IsZero() && a.ValidFrom.Before(q.Since) {
			continue
		}
		cpy := *a
		out = append(out, &cpy)
	}
	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Create inserts an alert, assigning an id when missing.
func (r *InMemoryRepository) Create(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.mu.Lock()
	cpy := *a
	r.alerts[a.ID] = &cpy
	r.mu.Unlock()

	r.publish(ctx, realtime.Insert, &cpy, nil)
	return nil
}

// Update replaces an alert.
func (r *InMemoryRepository) Update(ctx context.Context, a *Alert) error {
	r.mu.Lock()
	old, ok := r.alerts[a.ID]
	if !ok {
		r.mu.Unlock()
		return ErrAlertNotFound
	}
	cpy := *a
	r.alerts[a.ID] = &cpy
	r.mu.Unlock()

	r.publish(ctx, realtime.Update, &cpy, old)
	return nil
}

// Delete removes an alert.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	old, ok := r.alerts[id]
	if !ok {
		r.mu.Unlock()
		return ErrAlertNotFound
	}
	delete(r.alerts, id)
	r.mu.Unlock()

	r.publish(ctx, realtime.Delete, old, nil)
	return nil
}

func (r *InMemoryRepository) publish(ctx context.Context, typ realtime.EventType, row, old *Alert) {
	if r.publisher == nil {
		return
	}
	evt, err := realtime.NewEvent(realtime.TableSafetyAlerts, typ, row, time.Now())
	if err != nil {
		return
	}
	if old != nil {
		if data, err := json.Marshal(old); err == nil {
			evt.Old = data
		}
	}
	_ = r.publisher.Publish(ctx, evt)
}

func sortNewestFirst(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i].ValidFrom, alerts[j].ValidFrom
		switch {
		case a == nil && b == nil:
			return alerts[i].ID < alerts[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.After(*b)
		}
	})
}
