package digitalid

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists digital IDs.
type Repository interface {
	// Create stores a new ID. ErrDuplicate when the user or TSS id is taken.
	Create(ctx context.Context, d *DigitalID) error

	GetByUser(ctx context.Context, userID string) (*DigitalID, error)
	GetByTSSID(ctx context.Context, tssID string) (*DigitalID, error)

	// MarkVerified stamps last_verification.
	MarkVerified(ctx context.Context, tssID string, at time.Time) error
}

// InMemoryRepository is an in-memory Repository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byUser map[string]*DigitalID
	byTSS  map[string]*DigitalID
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byUser: make(map[string]*DigitalID),
		byTSS:  make(map[string]*DigitalID),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, d *DigitalID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[d.UserID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byTSS[d.TSSID]; ok {
		return ErrDuplicate
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	cpy := *d
	r.byUser[d.UserID] = &cpy
	r.byTSS[d.TSSID] = &cpy
	return nil
}

func (r *InMemoryRepository) GetByUser(_ context.Context, userID string) (*DigitalID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyOf(r.byUser[userID])
}

func (r *InMemoryRepository) GetByTSSID(_ context.Context, tssID string) (*DigitalID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyOf(r.byTSS[tssID])
}

func (r *InMemoryRepository) MarkVerified(_ context.Context, tssID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byTSS[tssID]
	if !ok {
		return ErrNotFound
	}
	d.LastVerification = &at
	d.UpdatedAt = at
	return nil
}

// SetStatus changes the stored status, as an operator would.
func (r *InMemoryRepository) SetStatus(tssID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byTSS[tssID]; ok {
		d.Status = status
	}
}

func copyOf(d *DigitalID) (*DigitalID, error) {
	if d == nil {
		return nil, ErrNotFound
	}
	cpy := *d
	if d.LastVerification != nil {
		t := *d.LastVerification
		cpy.LastVerification = &t
	}
	return &cpy, nil
}
