package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs jobs on cron schedules. It is used when no queue is
// configured.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	logger  zerolog.Logger
}

// NewScheduler creates a Scheduler. Each run is bounded by timeout.
func NewScheduler(runner Runner, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		timeout: timeout,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add schedules jobType on a cron expression, for example "@every 1m" or "*/5 * * * *".
// An empty schedule leaves the job unscheduled.
func (s *Scheduler) Add(schedule, jobType string) error {
	if schedule == "" {
		return nil
	}
	_, err := s.cron.AddFunc(schedule, func() { s.run(jobType) })
	if err != nil {
		return fmt.Errorf("schedule %s on %q: %w", jobType, schedule, err)
	}
	s.logger.Info().Str("job_type", jobType).Str("schedule", schedule).Msg("job scheduled")
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler until ctx ends, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(jobType string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.runner.Run(ctx, jobType); err != nil {
		s.logger.Error().Err(err).Str("job_type", jobType).Msg("scheduled job failed")
		return
	}
	s.logger.Debug().Str("job_type", jobType).Dur("duration", time.Since(start)).Msg("scheduled job completed")
}
