package sos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires due timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f, clock: c}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

type fakeLocations struct {
	latest location.Latest
	ok     bool
}

func (f fakeLocations) Latest(context.Context, string) (location.Latest, bool) {
	return f.latest, f.ok
}

type notifierFunc func(ctx context.Context, req NotifyRequest) (*NotifyResponse, error)

func (f notifierFunc) Notify(ctx context.Context, req NotifyRequest) (*NotifyResponse, error) {
	return f(ctx, req)
}

// countingRepo counts AppendLogs calls.
type countingRepo struct {
	*InMemoryRepository
	mu         sync.Mutex
	logCalls   int
	logActions []string
}

func (r *countingRepo) AppendLogs(ctx context.Context, logs []IncidentLog) error {
	r.mu.Lock()
	r.logCalls++
	for _, l := range logs {
		r.logActions = append(r.logActions, l.Action)
	}
	r.mu.Unlock()
	return r.InMemoryRepository.AppendLogs(ctx, logs)
}

func (r *countingRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logCalls
}

func strPtr(s string) *string { return &s }

func oldTown() fakeLocations {
	return fakeLocations{
		latest: location.Latest{
			Coordinate: geo.Coordinate{Lat: 50.087, Lng: 14.421},
			AreaName:   strPtr("Old Town"),
			City:       strPtr("Prague"),
		},
		ok: true,
	}
}

type fixture struct {
	repo    *InMemoryRepository
	clock   *fakeClock
	session *Session
}

func newFixture(t *testing.T, locs LocationSource, notifier Notifier) *fixture {
	t.Helper()
	repo := NewInMemoryRepository()
	clock := newFakeClock()
	if notifier == nil {
		notifier = NewNotifyService(repo, zerolog.Nop())
	}
	session := NewSession("u1", SessionConfig{
		Incidents: repo,
		Contacts:  repo,
		Notifier:  notifier,
		Locations: locs,
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})
	return &fixture{repo: repo, clock: clock, session: session}
}

func addContacts(repo *InMemoryRepository) {
	repo.AddContact(Contact{ID: "c-sister", UserID: "u1", Name: "Sister", Phone: "+1"})
	repo.AddContact(Contact{ID: "c-partner", UserID: "u1", Name: "Partner", Phone: "+2", Email: strPtr("p@example.com"), IsPrimary: true})
	repo.AddContact(Contact{ID: "c-other", UserID: "u2", Name: "Other", Phone: "+3"})
}

func TestSession_PressThenCancelHasNoSideEffects(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	addContacts(f.repo)

	st := f.session.Press(context.Background())
	assert.Equal(t, PhaseCountingDown, st.Phase)
	assert.Equal(t, DefaultCountdown, st.Countdown)

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 3, f.session.State().Countdown)

	assert.True(t, f.session.Cancel())
	assert.Equal(t, PhaseIdle, f.session.State().Phase)

	f.clock.Advance(time.Minute)
	assert.Equal(t, PhaseIdle, f.session.State().Phase)
	assert.Zero(t, f.repo.CreateAttempts())
	assert.Empty(t, f.repo.Notifications())
	assert.Empty(t, f.repo.Logs())
}

func TestSession_CancelOutsideCountdown(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	assert.False(t, f.session.Cancel())
}

func TestSession_DuplicatePressIgnored(t *testing.T) {
	f := newFixture(t, oldTown(), nil)

	f.session.Press(context.Background())
	f.clock.Advance(time.Second)
	st := f.session.Press(context.Background())
	assert.Equal(t, PhaseCountingDown, st.Phase)
	assert.Equal(t, 4, st.Countdown)

	f.clock.Advance(4 * time.Second)
	require.Equal(t, PhaseActive, f.session.State().Phase)
	f.session.Press(context.Background())
	assert.Equal(t, 1, f.repo.CreateAttempts())
}

func TestSession_Activation(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	require.Equal(t, PhaseActive, st.Phase)
	require.NotNil(t, st.IncidentID)
	assert.Equal(t, []string{"c-partner", "c-sister"}, st.Delivered)
	assert.Empty(t, st.Warnings)

	inc, err := f.repo.Get(context.Background(), *st.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, inc.Status)
	assert.Equal(t, "SOS at Old Town", *inc.Description)
	assert.Equal(t, "Old Town", *inc.TriggerAddress)
	assert.InDelta(t, 50.087, inc.TriggerCoordinate.Lat, 1e-9)

	notes := f.repo.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, "SOS sent to Partner", notes[0].Title)
	assert.True(t, notes[0].SendEmail)
	assert.False(t, notes[1].SendEmail)
	assert.Equal(t, *st.IncidentID, *notes[0].Data["incident_id"].(*string))

	logs := f.repo.Logs()
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, ActorSystem, l.ActorType)
		assert.Equal(t, ActionContactNotified, l.Action)
		assert.Equal(t, LogContactAttempt, l.LogType)
		assert.Equal(t, "Notified emergency contact", l.Message)
	}
	assert.Equal(t, "c-partner", logs[0].Metadata["contact_id"])
}

func TestSession_AutoResolveAfterDwell(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)
	id := *f.session.State().IncidentID

	f.clock.Advance(DefaultDwell - time.Second)
	assert.Equal(t, PhaseActive, f.session.State().Phase)

	f.clock.Advance(time.Second)
	assert.Equal(t, PhaseIdle, f.session.State().Phase)

	inc, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)
}

func TestSession_NoContacts(t *testing.T) {
	f := newFixture(t, oldTown(), nil)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.NotNil(t, st.IncidentID)
	assert.Equal(t, []string{WarnNoContacts}, st.Warnings)
	assert.Empty(t, st.Delivered)
	assert.Empty(t, f.repo.Notifications())
	assert.Empty(t, f.repo.Logs())
	assert.Len(t, f.repo.Incidents(), 1)
}

func TestSession_NoLocation(t *testing.T) {
	var got NotifyRequest
	notifier := notifierFunc(func(_ context.Context, req NotifyRequest) (*NotifyResponse, error) {
		got = req
		return &NotifyResponse{}, nil
	})
	f := newFixture(t, fakeLocations{}, notifier)
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Nil(t, st.IncidentID)
	assert.Contains(t, st.Warnings, WarnNoLocation)
	assert.Zero(t, f.repo.CreateAttempts())

	assert.Nil(t, got.Location)
	assert.Nil(t, got.IncidentID)
	assert.Len(t, got.Contacts, 2)
	assert.Equal(t, []string{"c-partner", "c-sister"}, st.Delivered)
}

func TestSession_PartialDelivery(t *testing.T) {
	notifier := notifierFunc(func(_ context.Context, req NotifyRequest) (*NotifyResponse, error) {
		return &NotifyResponse{Delivered: []DeliveredContact{{ID: req.Contacts[0].ID}}}, nil
	})
	f := newFixture(t, oldTown(), notifier)
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Equal(t, []string{"c-partner"}, st.Delivered)
	assert.Equal(t, []string{WarnPartialDelivery}, st.Warnings)
	assert.Len(t, f.repo.Logs(), 1)
}

func TestSession_NotifyFailureStaysActive(t *testing.T) {
	notifier := notifierFunc(func(context.Context, NotifyRequest) (*NotifyResponse, error) {
		return nil, errors.New("connection refused")
	})
	f := newFixture(t, oldTown(), notifier)
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.NotNil(t, st.IncidentID)
	assert.Equal(t, []string{WarnNotifyFailed}, st.Warnings)
	assert.Empty(t, st.Delivered)
}

func TestSession_IncidentFailureStillNotifies(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	addContacts(f.repo)
	f.repo.CreateErr = errors.New("insert failed")

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	st := f.session.State()
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Nil(t, st.IncidentID)
	assert.Contains(t, st.Warnings, WarnIncidentFailed)
	assert.Len(t, f.repo.Notifications(), 2)
	assert.Empty(t, f.repo.Logs())
}

func TestSession_MissingLogColumnDisablesLogs(t *testing.T) {
	repo := &countingRepo{InMemoryRepository: NewInMemoryRepository()}
	addContacts(repo.InMemoryRepository)
	repo.LogErr = &pgconn.PgError{
		Code:    "42703",
		Message: `column "metadata" of relation "sos_incident_logs" does not exist`,
	}
	clock := newFakeClock()
	session := NewSession("u1", SessionConfig{
		Incidents: repo,
		Contacts:  repo,
		Notifier:  NewNotifyService(repo, zerolog.Nop()),
		Locations: oldTown(),
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})

	session.Press(context.Background())
	clock.Advance(DefaultCountdown * time.Second)
	require.Equal(t, PhaseActive, session.State().Phase)
	assert.Equal(t, 1, repo.calls())

	_, err := session.Disable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls())
	assert.Equal(t, PhaseIdle, session.State().Phase)
}

func TestSession_Disable(t *testing.T) {
	repo := &countingRepo{InMemoryRepository: NewInMemoryRepository()}
	addContacts(repo.InMemoryRepository)
	clock := newFakeClock()
	session := NewSession("u1", SessionConfig{
		Incidents: repo,
		Contacts:  repo,
		Notifier:  NewNotifyService(repo, zerolog.Nop()),
		Locations: oldTown(),
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})

	session.Press(context.Background())
	clock.Advance(DefaultCountdown * time.Second)
	id := *session.State().IncidentID

	clock.Advance(10 * time.Second)
	st, err := session.Disable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)

	inc, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, inc.Status)
	resolvedAt := *inc.ResolvedAt

	logs := repo.Logs()
	last := logs[len(logs)-1]
	assert.Equal(t, ActionSOSDisabled, last.Action)
	assert.Equal(t, ActorUser, last.ActorType)
	assert.Equal(t, LogUserAction, last.LogType)
	assert.Equal(t, "User disabled SOS", last.Message)
	assert.Nil(t, last.Metadata)

	// The dwell timer was stopped; nothing changes when it would have fired.
	clock.Advance(time.Minute)
	inc, err = repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *inc.ResolvedAt)
	assert.Equal(t, PhaseIdle, session.State().Phase)
}

func TestSession_DisableWithoutIncidentResolvesUserIncidents(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	older := &Incident{UserID: "u1"}
	require.NoError(t, f.repo.Create(context.Background(), older))
	f.repo.CreateErr = errors.New("insert failed")

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)
	require.Nil(t, f.session.State().IncidentID)

	_, err := f.session.Disable(context.Background())
	require.NoError(t, err)

	inc, err := f.repo.Get(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, inc.Status)
}

func TestSession_DisableDuringActivationResolvesLateIncident(t *testing.T) {
	var session *Session
	notifier := notifierFunc(func(ctx context.Context, req NotifyRequest) (*NotifyResponse, error) {
		_, err := session.Disable(ctx)
		require.NoError(t, err)
		return &NotifyResponse{}, nil
	})
	f := newFixture(t, oldTown(), notifier)
	session = f.session
	addContacts(f.repo)

	f.session.Press(context.Background())
	f.clock.Advance(DefaultCountdown * time.Second)

	assert.Equal(t, PhaseIdle, f.session.State().Phase)
	incidents := f.repo.Incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, StatusResolved, incidents[0].Status)
}

func TestSession_Events(t *testing.T) {
	f := newFixture(t, oldTown(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := f.session.Events(ctx)
	assert.Equal(t, PhaseIdle, (<-events).Phase)

	f.session.Press(context.Background())
	st := <-events
	assert.Equal(t, PhaseCountingDown, st.Phase)
	assert.Equal(t, 5, st.Countdown)

	f.clock.Advance(time.Second)
	assert.Equal(t, 4, (<-events).Countdown)

	cancel()
	for range events {
	}
}

func TestInMemoryRepository_ResolveIsIdempotent(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	inc := &Incident{UserID: "u1"}
	require.NoError(t, repo.Create(ctx, inc))

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Resolve(ctx, inc.ID, first))
	require.NoError(t, repo.Resolve(ctx, inc.ID, first.Add(time.Hour)))

	got, err := repo.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, first, *got.ResolvedAt)

	n, err := repo.ResolveActiveForUser(ctx, "u1", first.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, repo.Resolve(ctx, "missing", first), ErrIncidentNotFound)
}

func TestManager(t *testing.T) {
	repo := NewInMemoryRepository()
	m := NewManager(SessionConfig{
		Incidents: repo,
		Contacts:  repo,
		Notifier:  NewNotifyService(repo, zerolog.Nop()),
		Locations: oldTown(),
		Clock:     newFakeClock(),
		Logger:    zerolog.Nop(),
	})

	assert.Same(t, m.Session("u1"), m.Session("u1"))
	assert.NotSame(t, m.Session("u1"), m.Session("u2"))
	assert.Equal(t, 2, m.Len())

	st, err := m.Press(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, PhaseCountingDown, st.Phase)

	other, err := m.State("u2")
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, other.Phase)

	st, err = m.Cancel("u1")
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)

	_, err = m.Press(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUser)
}

type recordingObserver struct {
	mu       sync.Mutex
	phases   []string
	warnings []string
}

func (o *recordingObserver) SOSTransition(_ context.Context, phase string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func (o *recordingObserver) SOSWarning(_ context.Context, warning string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, warning)
}

func TestSession_ObserverSeesPhaseChanges(t *testing.T) {
	repo := NewInMemoryRepository()
	clock := newFakeClock()
	obs := &recordingObserver{}
	session := NewSession("u1", SessionConfig{
		Incidents: repo,
		Contacts:  repo,
		Notifier:  NewNotifyService(repo, zerolog.Nop()),
		Locations: oldTown(),
		Observer:  obs,
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})

	session.Press(context.Background())
	clock.Advance(DefaultCountdown * time.Second)
	clock.Advance(DefaultDwell)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.NotEmpty(t, obs.phases)
	assert.Equal(t, string(PhaseCountingDown), obs.phases[0])
	assert.Contains(t, obs.phases, string(PhaseActive))
	assert.Equal(t, []string{WarnNoContacts}, obs.warnings)
}
