package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/sos"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// DefaultStaleAfter leaves a session a minute past its dwell to resolve
// its own incident before the sweep does.
const DefaultStaleAfter = sos.DefaultDwell + time.Minute

// ErrUnknownJob is returned by Run for an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// StaleResolver resolves incidents left active.
type StaleResolver interface {
	ResolveStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// AreaRepository lists and updates stored locations lacking an area.
type AreaRepository interface {
	ListMissingArea(ctx context.Context, checkedBefore time.Time, limit int) ([]*location.StoredLocation, error)
	UpdateArea(ctx context.Context, id string, area, city *string) error
	MarkAreaChecked(ctx context.Context, id string, at time.Time) error
}

// AreaGeocoder is the reverse lookup used by the backfill. Unlike the
// best-effort geocoding.Service it reports provider errors.
type AreaGeocoder interface {
	Reverse(ctx context.Context, at geo.Coordinate) (geocoding.Place, error)
}

// Jobs executes background jobs. Either dependency may be nil, which
// turns the matching job into a no-op.
type Jobs struct {
	config    Config
	sweeper   StaleResolver
	locations AreaRepository
	geocoder  AreaGeocoder
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	stats Stats
}

// JobsConfig holds the dependencies of Jobs.
type JobsConfig struct {
	Config    Config
	Sweeper   StaleResolver
	Locations AreaRepository
	Geocoder  AreaGeocoder
	Logger    zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats counts job outcomes since start.
type Stats struct {
	Sweeps          int64
	StaleResolved   int64
	Backfills       int64
	AreasResolved   int64
	AreasUnresolved int64
	Failures        int64
	LastRunAt       time.Time
}

// NewJobs creates a Jobs runner.
func NewJobs(cfg JobsConfig) *Jobs {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Jobs{
		config:    cfg.Config.withDefaults(),
		sweeper:   cfg.Sweeper,
		locations: cfg.Locations,
		geocoder:  cfg.Geocoder,
		logger:    cfg.Logger.With().Str("component", "worker").Logger(),
		now:       cfg.Now,
	}
}

// Run dispatches a job by type.
func (j *Jobs) Run(ctx context.Context, jobType string) error {
	var err error
	switch jobType {
	case JobResolveStale:
		_, err = j.ResolveStale(ctx)
	case JobBackfillAreas:
		_, err = j.BackfillAreas(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, jobType)
	}
	if err != nil {
		j.record(func(s *Stats) { s.Failures++ })
	}
	return err
}

// ResolveStale resolves incidents older than Config.StaleAfter.
func (j *Jobs) ResolveStale(ctx context.Context) (int, error) {
	if j.sweeper == nil {
		return 0, nil
	}
	n, err := j.sweeper.ResolveStale(ctx, j.config.StaleAfter)
	if err != nil {
		return 0, err
	}
	j.record(func(s *Stats) {
		s.Sweeps++
		s.StaleResolved += int64(n)
	})
	return n, nil
}

// BackfillResult summarises one backfill run.
type BackfillResult struct {
	Duration   time.Duration
	Scanned    int
	Resolved   int
	Unresolved int
	Failed     int
}

// BackfillAreas reverse geocodes up to Config.BackfillBatch stored rows that
// have neither area nor city, with at most Config.Concurrency lookups in
// flight. Rows the geocoder cannot name are marked checked and skipped for
// Config.RecheckAfter; rows whose lookup or update failed stay due.
func (j *Jobs) BackfillAreas(ctx context.Context) (*BackfillResult, error) {
	if j.locations == nil || j.geocoder == nil {
		return &BackfillResult{}, nil
	}
	start := time.Now()

	rows, err := j.locations.ListMissingArea(ctx, j.now().Add(-j.config.RecheckAfter), j.config.BackfillBatch)
	if err != nil {
		return nil, fmt.Errorf("list locations missing area: %w", err)
	}
	result := &BackfillResult{Scanned: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}

	work := make(chan *location.StoredLocation)
	outcomes := make(chan backfillOutcome, len(rows))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range work {
				outcomes <- j.backfillRow(ctx, row)
			}
		}()
	}

feed:
	for _, row := range rows {
		select {
		case <-ctx.Done():
			break feed
		case work <- row:
		}
	}
	close(work)
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		switch o {
		case backfillResolved:
			result.Resolved++
		case backfillUnresolved:
			result.Unresolved++
		default:
			result.Failed++
		}
	}
	result.Duration = time.Since(start)

	j.record(func(s *Stats) {
		s.Backfills++
		s.AreasResolved += int64(result.Resolved)
		s.AreasUnresolved += int64(result.Unresolved)
	})
	j.logger.Info().
		Int("scanned", result.Scanned).
		Int("resolved", result.Resolved).
		Int("unresolved", result.Unresolved).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("area backfill completed")

	if result.Failed > 0 && result.Resolved+result.Unresolved == 0 {
		return result, fmt.Errorf("area backfill: all %d lookups or updates failed", result.Failed)
	}
	return result, ctx.Err()
}

type backfillOutcome int

const (
	backfillResolved backfillOutcome = iota
	backfillUnresolved
	backfillFailed
)

func (j *Jobs) backfillRow(ctx context.Context, row *location.StoredLocation) backfillOutcome {
	lookupCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	place, err := j.geocoder.Reverse(lookupCtx, row.Coordinate)
	if err != nil {
		j.logger.Warn().Err(err).Str("location_id", row.ID).Msg("area lookup failed")
		return backfillFailed
	}
	if place.Area == nil && place.City == nil {
		if err := j.locations.MarkAreaChecked(ctx, row.ID, j.now()); err != nil {
			j.logger.Warn().Err(err).Str("location_id", row.ID).Msg("failed to mark location as checked")
			return backfillFailed
		}
		return backfillUnresolved
	}
	if err := j.locations.UpdateArea(ctx, row.ID, place.Area, place.City); err != nil {
		j.logger.Warn().Err(err).Str("location_id", row.ID).Msg("failed to store backfilled area")
		return backfillFailed
	}
	return backfillResolved
}

func (j *Jobs) record(apply func(*Stats)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	apply(&j.stats)
	j.stats.LastRunAt = time.Now()
}

// Stats returns a copy of the job counters.
func (j *Jobs) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}

var _ AreaGeocoder = geocoding.Geocoder(nil)
