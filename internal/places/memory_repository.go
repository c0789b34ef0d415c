package places

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryRepository is an in-memory Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items []*Accommodation
	err   error
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a repository holding items.
func NewInMemoryRepository(items ...*Accommodation) *InMemoryRepository {
	r := &InMemoryRepository{}
	for _, a := range items {
		r.Add(a)
	}
	return r
}

// Add stores an accommodation.
func (r *InMemoryRepository) Add(a *Accommodation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *a
	r.items = append(r.items, &cpy)
	sort.SliceStable(r.items, func(i, j int) bool { return r.items[i].CreatedAt.After(r.items[j].CreatedAt) })
}

// SetError makes List fail with err until cleared with nil.
func (r *InMemoryRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// List returns the catalog, newest first.
func (r *InMemoryRepository) List(_ context.Context, city string) ([]*Accommodation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	var out []*Accommodation
	for _, a := range r.items {
		if city != "" && (a.City == nil || !strings.EqualFold(*a.City, city)) {
			continue
		}
		cpy := *a
		out = append(out, &cpy)
	}
	return out, nil
}
