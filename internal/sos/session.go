package sos

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/database"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
)

const incidentLogsTable = "sos_incident_logs"

// LocationSource provides the last known location of a user.
type LocationSource interface {
	Latest(ctx context.Context, userID string) (location.Latest, bool)
}

// Observer is notified of session activity, typically a metrics recorder.
type Observer interface {
	SOSTransition(ctx context.Context, phase string)
	SOSWarning(ctx context.Context, warning string)
}

// SessionConfig holds the collaborators shared by every session.
type SessionConfig struct {
	Incidents IncidentRepository
	Contacts  ContactRepository
	Notifier  Notifier
	Locations LocationSource

	// Observer receives phase changes and activation warnings. Optional.
	Observer Observer

	Clock       Clock
	Countdown   int
	Tick        time.Duration
	Dwell       time.Duration
	ContactsMax int

	Logger zerolog.Logger
}

func (c *SessionConfig) applyDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if c.ContactsMax <= 0 {
		c.ContactsMax = DefaultContactsMax
	}
}

// Session is the SOS state machine of one user.
//
// Every transition bumps gen; timers and in-flight activations compare the
// generation they were started with and give up when it moved on.
type Session struct {
	userID string
	cfg    SessionConfig
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	gen          uint64
	tick         Timer
	dwell        Timer
	ctx          context.Context
	logsDisabled bool
	subs         map[int]chan State
	nextSub      int
	lastPhase    Phase
}

// NewSession creates an idle session for userID.
func NewSession(userID string, cfg SessionConfig) *Session {
	cfg.applyDefaults()
	return &Session{
		userID: userID,
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "sos").Str("user_id", userID).Logger(),
		state:     State{UserID: userID, Phase: PhaseIdle},
		ctx:       context.Background(),
		subs:      make(map[int]chan State),
		lastPhase: PhaseIdle,
	}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Press starts the countdown. It is ignored unless the session is idle.
func (s *Session) Press(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseIdle {
		s.logger.Debug().Str("phase", string(s.state.Phase)).Msg("sos press ignored")
		return s.snapshot()
	}

	s.gen++
	s.ctx = context.WithoutCancel(ctx)
	s.logsDisabled = false
	s.state = State{UserID: s.userID, Phase: PhaseCountingDown, Countdown: s.cfg.Countdown}
	s.scheduleTick(s.gen)
	s.publish()
	s.logger.Info().Int("countdown", s.cfg.Countdown).Msg("sos countdown started")
	return s.snapshot()
}

// Cancel aborts a running countdown. It reports whether a countdown was
// cancelled; nothing is written in either case.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != PhaseCountingDown {
		return false
	}
	s.gen++
	s.stopTimers()
	s.state = State{UserID: s.userID, Phase: PhaseIdle}
	s.publish()
	s.logger.Info().Msg("sos countdown cancelled")
	return true
}

// Disable resolves an active SOS on the user's request. During the
// countdown it behaves like Cancel. It returns the resulting state and the
// first storage error, which never keeps the session active.
func (s *Session) Disable(ctx context.Context) (State, error) {
	s.mu.Lock()
	switch s.state.Phase {
	case PhaseCountingDown:
		s.mu.Unlock()
		s.Cancel()
		return s.State(), nil
	case PhaseActive:
	default:
		defer s.mu.Unlock()
		return s.snapshot(), nil
	}

	incidentID := s.state.IncidentID
	logsDisabled := s.logsDisabled
	s.finish()
	state := s.snapshot()
	s.mu.Unlock()

	now := s.cfg.Clock.Now()
	var err error
	if incidentID != nil {
		err = s.cfg.Incidents.Resolve(ctx, *incidentID, now)
	} else {
		_, err = s.cfg.Incidents.ResolveActiveForUser(ctx, s.userID, now)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve sos incident")
	}

	if incidentID != nil && !logsDisabled {
		logErr := s.cfg.Incidents.AppendLogs(ctx, []IncidentLog{{
			IncidentID: *incidentID,
			ActorType:  ActorUser,
			Action:     ActionSOSDisabled,
			LogType:    LogUserAction,
			Message:    "User disabled SOS",
		}})
		if logErr != nil {
			s.logger.Warn().Err(logErr).Msg("failed to log sos disable")
		}
	}

	s.logger.Info().Msg("sos disabled by user")
	return state, err
}

// Events streams state changes until ctx is done. The current state is
// sent first. Slow readers miss intermediate states.
func (s *Session) Events(ctx context.Context) <-chan State {
	ch := make(chan State, 16)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshot()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) snapshot() State {
	st := s.state
	st.Delivered = append([]string(nil), s.state.Delivered...)
	st.Warnings = append([]string(nil), s.state.Warnings...)
	return st
}

// publish must be called with mu held.
func (s *Session) publish() {
	st := s.snapshot()
	if st.Phase != s.lastPhase {
		s.lastPhase = st.Phase
		if s.cfg.Observer != nil {
			s.cfg.Observer.SOSTransition(s.ctx, string(st.Phase))
		}
	}
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Session) stopTimers() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	if s.dwell != nil {
		s.dwell.Stop()
		s.dwell = nil
	}
}

func (s *Session) scheduleTick(gen uint64) {
	s.tick = s.cfg.Clock.AfterFunc(s.cfg.Tick, func() { s.onTick(gen) })
}

func (s *Session) onTick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state.Phase != PhaseCountingDown {
		s.mu.Unlock()
		return
	}

	s.state.Countdown--
	if s.state.Countdown > 0 {
		s.scheduleTick(gen)
		s.publish()
		s.mu.Unlock()
		return
	}

	s.tick = nil
	s.state.Phase = PhaseActive
	s.state.ActivatedAt = s.cfg.Clock.Now()
	s.dwell = s.cfg.Clock.AfterFunc(s.cfg.Dwell, func() { s.onDwell(gen) })
	s.publish()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Warn().Msg("sos activated")
	s.activate(ctx, gen)
}

// activate runs the entry actions of the active phase. Each step is
// best-effort; failures become warnings.
func (s *Session) activate(ctx context.Context, gen uint64) {
	var (
		warnings     []string
		incident     *Incident
		delivered    []string
		logsDisabled bool
	)

	latest, hasLocation := s.cfg.Locations.Latest(ctx, s.userID)
	if !hasLocation {
		warnings = append(warnings, WarnNoLocation)
	} else {
		inc := &Incident{
			UserID:            s.userID,
			TriggerCoordinate: latest.Coordinate,
			TriggerAddress:    latest.AreaName,
		}
		desc := "SOS activated"
		if latest.AreaName != nil && *latest.AreaName != "" {
			desc = "SOS at " + *latest.AreaName
		}
		inc.Description = &desc

		if err := s.cfg.Incidents.Create(ctx, inc); err != nil {
			s.logger.Error().Err(err).Msg("failed to create sos incident")
			warnings = append(warnings, WarnIncidentFailed)
			if logsTableMissing(err) {
				logsDisabled = true
			}
		} else {
			incident = inc
		}
	}

	contacts, err := s.cfg.Contacts.ListForUser(ctx, s.userID, s.cfg.ContactsMax)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("failed to load emergency contacts")
		warnings = append(warnings, WarnContactsFailed)
	case len(contacts) == 0:
		warnings = append(warnings, WarnNoContacts)
	default:
		var w []string
		delivered, w = s.notify(ctx, incident, latest, hasLocation, contacts)
		warnings = append(warnings, w...)
	}

	if incident != nil && len(delivered) > 0 && !logsDisabled {
		logs := make([]IncidentLog, 0, len(delivered))
		for _, id := range delivered {
			logs = append(logs, IncidentLog{
				IncidentID: incident.ID,
				ActorType:  ActorSystem,
				Action:     ActionContactNotified,
				LogType:    LogContactAttempt,
				Message:    "Notified emergency contact",
				Metadata:   map[string]any{"contact_id": id},
			})
		}
		if err := s.cfg.Incidents.AppendLogs(ctx, logs); err != nil {
			if logsTableMissing(err) {
				logsDisabled = true
				s.logger.Warn().Err(err).Msg("incident logs unavailable; skipping log writes")
			} else {
				s.logger.Error().Err(err).Msg("failed to write incident logs")
			}
		}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if incident != nil {
			if err := s.cfg.Incidents.Resolve(ctx, incident.ID, s.cfg.Clock.Now()); err != nil {
				s.logger.Error().Err(err).Str("incident_id", incident.ID).Msg("failed to resolve late sos incident")
			}
		}
		return
	}
	if incident != nil {
		id := incident.ID
		s.state.IncidentID = &id
	}
	s.state.Delivered = delivered
	s.state.Warnings = warnings
	s.logsDisabled = logsDisabled
	s.publish()
	s.mu.Unlock()

	s.logger.Info().Int("delivered", len(delivered)).Strs("warnings", warnings).Msg("sos activation complete")
	if s.cfg.Observer != nil {
		for _, w := range warnings {
			s.cfg.Observer.SOSWarning(ctx, w)
		}
	}
}

func (s *Session) notify(ctx context.Context, incident *Incident, latest location.Latest, hasLocation bool, contacts []Contact) ([]string, []string) {
	req := NotifyRequest{UserID: s.userID}
	if incident != nil {
		id := incident.ID
		req.IncidentID = &id
	}
	if hasLocation {
		lat, lng := latest.Coordinate.Lat, latest.Coordinate.Lng
		req.Location = &NotifyLocation{Lat: &lat, Lng: &lng, AreaName: latest.AreaName}
	}
	for _, c := range contacts {
		req.Contacts = append(req.Contacts, NotifyContact{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email})
	}

	resp, err := s.cfg.Notifier.Notify(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to notify emergency contacts")
		return nil, []string{WarnNotifyFailed}
	}

	var warnings []string
	if resp.Error != "" {
		warnings = append(warnings, WarnNotifyFailed)
	}
	if resp.Warning != "" {
		warnings = append(warnings, resp.Warning)
	}

	var delivered []string
	if resp.Delivered == nil && resp.Error == "" {
		for _, c := range contacts {
			delivered = append(delivered, c.ID)
		}
	} else {
		for _, d := range resp.Delivered {
			delivered = append(delivered, d.ID)
		}
	}
	if len(delivered) < len(contacts) && resp.Error == "" {
		warnings = append(warnings, WarnPartialDelivery)
	}
	return delivered, warnings
}

func (s *Session) onDwell(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state.Phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	s.dwell = nil
	s.finish()
	ctx := s.ctx
	s.mu.Unlock()

	n, err := s.cfg.Incidents.ResolveActiveForUser(ctx, s.userID, s.cfg.Clock.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to auto-resolve sos incidents")
		return
	}
	s.logger.Info().Int("resolved", n).Msg("sos auto-resolved")
}

// finish publishes the resolved state and returns to idle. Called with mu held.
func (s *Session) finish() {
	s.gen++
	s.stopTimers()
	s.state.Phase = PhaseResolved
	s.publish()
	s.state = State{UserID: s.userID, Phase: PhaseIdle}
	s.publish()
}

func logsTableMissing(err error) bool {
	return database.IsCode(err, database.CodeUndefinedColumn) && database.Mentions(err, incidentLogsTable)
}
