package profile

import (
	"context"
	"errors"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// Scores serves the stored safety score and remembers the last value seen
// per user so that read failures degrade to a stale value.
type Scores struct {
	repo   Repository
	sub    realtime.Subscriber
	logger zerolog.Logger
	last   cmap.ConcurrentMap[string, int]
}

// NewScores creates a Scores service.
func NewScores(repo Repository, sub realtime.Subscriber, logger zerolog.Logger) *Scores {
	return &Scores{
		repo:   repo,
		sub:    sub,
		logger: logger.With().Str("component", "safety_score").Logger(),
		last:   cmap.New[int](),
	}
}

// Get returns the stored score. ok is false when the user has no score.
// A read failure returns the last value seen when there is one.
func (s *Scores) Get(ctx context.Context, userID string) (score int, ok bool, err error) {
	p, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return 0, false, nil
	case err != nil:
		if last, found := s.last.Get(userID); found {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("serving last known safety score")
			return last, true, nil
		}
		return 0, false, err
	case p.SafetyScore == nil:
		return 0, false, nil
	}
	s.last.Set(userID, *p.SafetyScore)
	return *p.SafetyScore, true, nil
}

// Last returns the last score seen for a user without reading the store.
func (s *Scores) Last(userID string) (int, bool) {
	return s.last.Get(userID)
}

// Set clamps and stores a score.
func (s *Scores) Set(ctx context.Context, userID string, score int) (int, error) {
	score = ClampScore(score)
	if _, err := s.repo.SetSafetyScore(ctx, userID, score); err != nil {
		return 0, err
	}
	s.last.Set(userID, score)
	return score, nil
}

// Watch emits the current score (when known), then the score of every
// update to the user's profile row. The channel closes when ctx ends.
func (s *Scores) Watch(ctx context.Context, userID string) <-chan int {
	out := make(chan int, 1)
	sub := s.sub.Subscribe(ctx, realtime.TableProfiles, realtime.Eq("user_id", userID), realtime.Insert, realtime.Update)

	go func() {
		defer close(out)
		defer sub.Close()

		send := func(v int) bool {
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		score, ok, err := s.Get(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read safety score")
		}
		if ok && !send(score) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case evt, open := <-sub.C():
				if !open {
					return
				}
				var p Profile
				if err := evt.Decode(&p); err != nil || p.SafetyScore == nil {
					continue
				}
				s.last.Set(userID, *p.SafetyScore)
				if !send(*p.SafetyScore) {
					return
				}
			}
		}
	}()

	return out
}
