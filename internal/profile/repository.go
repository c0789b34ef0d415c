package profile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// Repository defines profile persistence.
type Repository interface {
	// Get retrieves the profile of a user.
	Get(ctx context.Context, userID string) (*Profile, error)

	// SetSafetyScore stores the score, creating the row when missing.
	SetSafetyScore(ctx context.Context, userID string, score int) (*Profile, error)

	// SetLocationSharing stores the location sharing preference.
	SetLocationSharing(ctx context.Context, userID string, enabled bool) (*Profile, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Writes are published to an optional realtime publisher.
type InMemoryRepository struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile
	err       error
	publisher realtime.Publisher
	now       func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory profile repository.
func NewInMemoryRepository(publisher realtime.Publisher) *InMemoryRepository {
	return &InMemoryRepository{
		profiles:  make(map[string]*Profile),
		publisher: publisher,
		now:       time.Now,
	}
}

// SetError makes Get fail with err until cleared with nil.
func (r *InMemoryRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Get retrieves the profile of a user.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(p), nil
}

// SetSafetyScore stores the score.
func (r *InMemoryRepository) SetSafetyScore(ctx context.Context, userID string, score int) (*Profile, error) {
	return r.update(ctx, userID, func(p *Profile) { p.SafetyScore = &score })
}

// SetLocationSharing stores the location sharing preference.
func (r *InMemoryRepository) SetLocationSharing(ctx context.Context, userID string, enabled bool) (*Profile, error) {
	return r.update(ctx, userID, func(p *Profile) { p.LocationSharing = enabled })
}

func (r *InMemoryRepository) update(ctx context.Context, userID string, apply func(*Profile)) (*Profile, error) {
	r.mu.Lock()
	p, exists := r.profiles[userID]
	var old *Profile
	if exists {
		old = copyProfile(p)
	} else {
		p = &Profile{UserID: userID, LocationSharing: true}
		r.profiles[userID] = p
	}
	apply(p)
	p.UpdatedAt = r.now()
	out := copyProfile(p)
	r.mu.Unlock()

	if r.publisher != nil {
		typ := realtime.Insert
		if exists {
			typ = realtime.Update
		}
		if evt, err := realtime.NewEvent(realtime.TableProfiles, typ, out, out.UpdatedAt); err == nil {
			if old != nil {
				evt.Old, _ = json.Marshal(old)
			}
			_ = r.publisher.Publish(ctx, evt)
		}
	}
	return out, nil
}

func copyProfile(p *Profile) *Profile {
	cpy := *p
	if p.SafetyScore != nil {
		s := *p.SafetyScore
		cpy.SafetyScore = &s
	}
	return &cpy
}
