// Package worker runs the background jobs of the tourist safety backend:
// sweeping SOS incidents that were never resolved and backfilling the area
// of stored locations. Jobs arrive over Pub/Sub or run on a cron schedule.
package worker

import (
	"time"
)

// Job types accepted on the queue.
const (
	JobResolveStale  = "sos.resolve_stale"
	JobBackfillAreas = "locations.backfill_areas"
)

// Config holds configuration for the background jobs.
type Config struct {
	// StaleAfter is the age after which an active incident is resolved.
	// Default: sos.DefaultDwell plus one minute of slack.
	StaleAfter time.Duration

	// BackfillBatch is the number of rows geocoded per backfill run.
	// Default: 100
	BackfillBatch int

	// Concurrency is the number of concurrent geocoding lookups.
	// Default: 4
	Concurrency int

	// Timeout bounds each geocoding lookup.
	// Default: 10 seconds
	Timeout time.Duration

	// RecheckAfter is how long a row the geocoder could not name is skipped
	// before it is looked up again.
	// Default: 7 days
	RecheckAfter time.Duration
}

// DefaultConfig returns the default job configuration.
func DefaultConfig() Config {
	return Config{
		StaleAfter:    DefaultStaleAfter,
		BackfillBatch: 100,
		Concurrency:   4,
		Timeout:       10 * time.Second,
		RecheckAfter:  7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.BackfillBatch <= 0 {
		c.BackfillBatch = def.BackfillBatch
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RecheckAfter <= 0 {
		c.RecheckAfter = def.RecheckAfter
	}
	return c
}
