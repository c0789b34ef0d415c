package sos

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper resolves incidents whose session never resolved them, for
// example because the process exited during the dwell.
type Sweeper struct {
	repo   IncidentRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(repo IncidentRepository, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:   repo,
		logger: logger.With().Str("component", "sos_sweeper").Logger(),
		now:    time.Now,
	}
}

// ResolveStale resolves incidents active for longer than maxAge. A zero
// maxAge uses DefaultDwell.
func (s *Sweeper) ResolveStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultDwell
	}
	now := s.now()
	n, err := s.repo.ResolveActiveBefore(ctx, now.Add(-maxAge), now)
	if err != nil {
		return 0, fmt.Errorf("resolve stale incidents: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int("resolved", n).Dur("max_age", maxAge).Msg("resolved stale sos incidents")
	}
	return n, nil
}
