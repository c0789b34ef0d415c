package location

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOneShotTimeout bounds the single fallback read.
const DefaultOneShotTimeout = 15 * time.Second

// PositionSource produces device positions.
type PositionSource interface {
	// Watch streams positions until ctx ends or the source is exhausted.
	// It returns ErrSourceUnavailable when continuous updates are not possible.
	Watch(ctx context.Context) (<-chan Sample, error)

	// Current performs a single read.
	Current(ctx context.Context) (Sample, error)
}

// Recorder accepts samples; *Store implements it.
type Recorder interface {
	Record(ctx context.Context, userID string, sample Sample) (*RecordResult, error)
}

// Tracker feeds a position source into a Recorder.
type Tracker struct {
	recorder       Recorder
	oneShotTimeout time.Duration
	logger         zerolog.Logger
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	OneShotTimeout time.Duration
	Logger         zerolog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(recorder Recorder, cfg TrackerConfig) *Tracker {
	if cfg.OneShotTimeout <= 0 {
		cfg.OneShotTimeout = DefaultOneShotTimeout
	}
	return &Tracker{
		recorder:       recorder,
		oneShotTimeout: cfg.OneShotTimeout,
		logger:         cfg.Logger.With().Str("component", "location_tracker").Logger(),
	}
}

// Run records positions until ctx ends or the source closes. When the
// source cannot stream, a single bounded read is recorded instead.
func (t *Tracker) Run(ctx context.Context, userID string, src PositionSource) error {
	if userID == "" {
		return ErrMissingUser
	}

	samples, err := src.Watch(ctx)
	if err != nil {
		t.logger.Info().Err(err).Msg("continuous positions unavailable, using one-shot read")
		sample, err := t.OneShot(ctx, src)
		if err != nil {
			return err
		}
		_, err = t.recorder.Record(ctx, userID, sample)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sample, ok := <-samples:
			if !ok {
				return nil
			}
			res, err := t.recorder.Record(ctx, userID, sample)
			if err != nil {
				t.logger.Warn().Err(err).Msg("rejected position")
				continue
			}
			t.logger.Debug().
				Bool("persisted", res.Persisted).
				Bool("throttled", res.Throttled).
				Str("coordinate", sample.Coordinate.String()).
				Msg("position recorded")
		}
	}
}

// OneShot reads a single position with the tracker's timeout.
func (t *Tracker) OneShot(ctx context.Context, src PositionSource) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, t.oneShotTimeout)
	defer cancel()

	sample, err := src.Current(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Sample{}, ErrSourceUnavailable
		}
		return Sample{}, err
	}
	return sample, nil
}
