package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/realtime"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Repository Repository
	Subscriber realtime.Subscriber
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Aggregator counts active alerts and recomputes the count on every change
// to safety_alerts.
type Aggregator struct {
	repo   Repository
	sub    realtime.Subscriber
	logger zerolog.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		repo:   cfg.Repository,
		sub:    cfg.Subscriber,
		logger: cfg.Logger.With().Str("component", "alerts").Logger(),
		now:    cfg.Now,
	}
}

// Recent returns up to limit alerts active within window, newest first.
func (a *Aggregator) Recent(ctx context.Context, city string, window time.Duration, limit int) ([]*Alert, error) {
	now := a.now()
	items, err := a.repo.List(ctx, Query{City: city, Since: now.Add(-window)})
	if err != nil {
		return nil, err
	}
	out := make([]*Alert, 0, len(items))
	for _, al := range items {
		if al.ActiveAt(now, window) {
			out = append(out, al)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ActiveCount counts alerts whose ValidFrom lies in [now-window, now].
// Undated alerts are counted.
func (a *Aggregator) ActiveCount(ctx context.Context, city string, window time.Duration) (int, error) {
	items, err := a.Recent(ctx, city, window, 0)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Watch emits the current count, then a recomputed count after every
// insert, update or delete on safety_alerts in city. Failed recomputations
// are logged and skipped. The channel closes when ctx ends.
func (a *Aggregator) Watch(ctx context.Context, city string, window time.Duration) <-chan int {
	out := make(chan int, 1)

	var filter realtime.Filter
	if city != "" {
		filter = realtime.Eq("city", city)
	}
	sub := a.sub.Subscribe(ctx, realtime.TableSafetyAlerts, filter, realtime.AllEvents...)

	go func() {
		defer close(out)
		defer sub.Close()

		emit := func() bool {
			n, err := a.ActiveCount(ctx, city, window)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Warn().Err(err).Str("city", city).Msg("failed to recount alerts")
				}
				return ctx.Err() == nil
			}
			select {
			case out <- n:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}
