package sos

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements the incident, contact and notification
// repositories in memory. Failures can be injected per operation.
type InMemoryRepository struct {
	mu            sync.RWMutex
	incidents     map[string]*Incident
	order         []string
	logs          []IncidentLog
	contacts      []Contact
	notifications []Notification

	CreateErr       error
	LogErr          error
	ContactsErr     error
	NotificationErr error

	creates int
	now     func() time.Time
}

var (
	_ IncidentRepository     = (*InMemoryRepository)(nil)
	_ ContactRepository      = (*InMemoryRepository)(nil)
	_ NotificationRepository = (*InMemoryRepository)(nil)
)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{incidents: make(map[string]*Incident), now: time.Now}
}

// SetClock overrides the creation timestamp source.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// AddContact stores an emergency contact.
func (r *InMemoryRepository) AddContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.contacts = append(r.contacts, c)
}

// Create inserts an incident.
func (r *InMemoryRepository) Create(_ context.Context, inc *Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creates++
	if r.CreateErr != nil {
		return r.CreateErr
	}
	inc.ID = uuid.NewString()
	inc.Status = StatusActive
	inc.CreatedAt = r.now()
	cpy := *inc
	r.incidents[inc.ID] = &cpy
	r.order = append(r.order, inc.ID)
	return nil
}

// CreateAttempts returns how many incident inserts were attempted.
func (r *InMemoryRepository) CreateAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.creates
}

// Get retrieves an incident.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cpy := *inc
	return &cpy, nil
}

// Incidents returns every incident in creation order.
func (r *InMemoryRepository) Incidents() []Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Incident, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.incidents[id])
	}
	return out
}

// Resolve marks an incident resolved.
func (r *InMemoryRepository) Resolve(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}
	resolve(inc, at)
	return nil
}

// ResolveActiveForUser resolves every active incident of a user.
func (r *InMemoryRepository) ResolveActiveForUser(_ context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, inc := range r.incidents {
		if inc.UserID == userID && inc.Status == StatusActive {
			resolve(inc, at)
			n++
		}
	}
	return n, nil
}

// ResolveActiveBefore resolves active incidents created before cutoff.
func (r *InMemoryRepository) ResolveActiveBefore(_ context.Context, cutoff, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, inc := range r.incidents {
		if inc.Status == StatusActive && inc.CreatedAt.Before(cutoff) {
			resolve(inc, at)
			n++
		}
	}
	return n, nil
}

func resolve(inc *Incident, at time.Time) {
	if inc.Status == StatusResolved {
		return
	}
	inc.Status = StatusResolved
	t := at
	inc.ResolvedAt = &t
}

// AppendLogs stores audit log rows.
func (r *InMemoryRepository) AppendLogs(_ context.Context, logs []IncidentLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.LogErr != nil {
		return r.LogErr
	}
	for _, l := range logs {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = r.now()
		}
		r.logs = append(r.logs, l)
	}
	return nil
}

// Logs returns every stored audit log row.
func (r *InMemoryRepository) Logs() []IncidentLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]IncidentLog(nil), r.logs...)
}

// ListForUser returns contacts of a user, primary first.
func (r *InMemoryRepository) ListForUser(_ context.Context, userID string, limit int) ([]Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.ContactsErr != nil {
		return nil, r.ContactsErr
	}
	var out []Contact
	for _, c := range r.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsPrimary && !out[j].IsPrimary })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertNotifications stores notification rows.
func (r *InMemoryRepository) InsertNotifications(_ context.Context, rows []Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.NotificationErr != nil {
		return r.NotificationErr
	}
	for _, n := range rows {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		r.notifications = append(r.notifications, n)
	}
	return nil
}

// Notifications returns every stored notification.
func (r *InMemoryRepository) Notifications() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Notification(nil), r.notifications...)
}
