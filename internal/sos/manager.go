package sos

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Manager owns one Session per user, created on first use.
type Manager struct {
	cfg      SessionConfig
	sessions cmap.ConcurrentMap[string, *Session]
}

// NewManager creates a Manager whose sessions share cfg.
func NewManager(cfg SessionConfig) *Manager {
	cfg.applyDefaults()
	return &Manager{cfg: cfg, sessions: cmap.New[*Session]()}
}

// Session returns the session of userID, creating it when needed.
func (m *Manager) Session(userID string) *Session {
	return m.sessions.Upsert(userID, nil, func(exists bool, current, _ *Session) *Session {
		if exists {
			return current
		}
		return NewSession(userID, m.cfg)
	})
}

// Press starts the countdown for userID.
func (m *Manager) Press(ctx context.Context, userID string) (State, error) {
	if userID == "" {
		return State{}, ErrMissingUser
	}
	return m.Session(userID).Press(ctx), nil
}

// Cancel aborts the countdown of userID.
func (m *Manager) Cancel(userID string) (State, error) {
	if userID == "" {
		return State{}, ErrMissingUser
	}
	s := m.Session(userID)
	s.Cancel()
	return s.State(), nil
}

// Disable resolves the active SOS of userID.
func (m *Manager) Disable(ctx context.Context, userID string) (State, error) {
	if userID == "" {
		return State{}, ErrMissingUser
	}
	return m.Session(userID).Disable(ctx)
}

// State returns the session state of userID.
func (m *Manager) State(userID string) (State, error) {
	if userID == "" {
		return State{}, ErrMissingUser
	}
	return m.Session(userID).State(), nil
}

// Events streams the session states of userID.
func (m *Manager) Events(ctx context.Context, userID string) <-chan State {
	return m.Session(userID).Events(ctx)
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	return m.sessions.Count()
}
