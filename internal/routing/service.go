package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// DefaultAlertWindow is the alert cutoff used for route scoring.
const DefaultAlertWindow = 6 * time.Hour

// AlertCounter counts recent safety alerts, optionally scoped to a city.
type AlertCounter interface {
	ActiveCount(ctx context.Context, city string, window time.Duration) (int, error)
}

// AlertWatcher streams live alert counts. The channel closes when ctx ends.
type AlertWatcher interface {
	Watch(ctx context.Context, city string, window time.Duration) <-chan int
}

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing engine. Nil means straight-line estimates only.
	Provider Provider

	Alerts AlertCounter

	// AlertWindow is the alert cutoff (default: 6 hours).
	AlertWindow time.Duration

	// CacheTTL is how long engine alternatives are reused (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the cache cell size in degrees (default: 0.001, about 110 m).
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale alternatives on engine errors (default: 30 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often expired entries are swept (default: 5 minutes).
	CleanupInterval time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// SuggestRequest asks for scored routes between two points.
type SuggestRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	// City scopes the alert count. Empty counts alerts everywhere.
	City string
}

// Service scores route variants with cached engine alternatives.
type Service struct {
	provider        Provider
	alerts          AlertCounter
	alertWindow     time.Duration
	logger          zerolog.Logger
	now             func() time.Time
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.Mutex
	cache       map[string]*cachedAlternatives
	lastCleanup time.Time
}

type cachedAlternatives struct {
	alternatives []Alternative
	fetchedAt    time.Time
	expiresAt    time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = DefaultAlertWindow
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheGridSize <= 0 {
		cfg.CacheGridSize = 0.001
	}
	if cfg.StaleIfErrorTTL <= 0 {
		cfg.StaleIfErrorTTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		provider:        cfg.Provider,
		alerts:          cfg.Alerts,
		alertWindow:     cfg.AlertWindow,
		logger:          cfg.Logger.With().Str("component", "routing").Logger(),
		now:             cfg.Now,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		cleanupInterval: cfg.CleanupInterval,
		cache:           make(map[string]*cachedAlternatives),
	}
}

// Suggest returns the three scored route options. Engine and alert failures
// degrade the result; only invalid coordinates are returned as errors.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) (*Suggestion, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	alerts := s.activeAlerts(ctx, req.City)
	alts, degraded := s.alternatives(ctx, req.Origin, req.Destination)

	return s.suggestion(req, alerts, alts, degraded), nil
}

// Watch emits a fresh Suggestion for the initial alert count and again each
// time the live count changes. Engine alternatives are fetched once.
func (s *Service) Watch(ctx context.Context, req SuggestRequest, watcher AlertWatcher) (<-chan *Suggestion, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	alts, degraded := s.alternatives(ctx, req.Origin, req.Destination)
	counts := watcher.Watch(ctx, req.City, s.alertWindow)

	out := make(chan *Suggestion, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-counts:
				if !ok {
					return
				}
				select {
				case out <- s.suggestion(req, n, alts, degraded):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Service) suggestion(req SuggestRequest, alerts int, alts []Alternative, degraded bool) *Suggestion {
	sg := &Suggestion{
		Options: Score(ScoreInput{
			Origin:       req.Origin,
			Destination:  req.Destination,
			ActiveAlerts: alerts,
			Alternatives: alts,
		}),
		ActiveAlerts: alerts,
		Degraded:     degraded,
		GeneratedAt:  s.now(),
	}
	if s.provider != nil {
		sg.Provider = s.provider.Name()
	}
	return sg
}

func (s *Service) activeAlerts(ctx context.Context, city string) int {
	if s.alerts == nil {
		return 0
	}
	n, err := s.alerts.ActiveCount(ctx, city, s.alertWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("city", city).Msg("alert count unavailable, scoring without alerts")
		return 0
	}
	return n
}

// alternatives returns cached or fresh engine alternatives. The boolean is
// true when the engine could not be used and no stale entry was available.
func (s *Service) alternatives(ctx context.Context, origin, destination geo.Coordinate) ([]Alternative, bool) {
	if s.provider == nil {
		return nil, true
	}

	key := s.cacheKey(origin, destination)
	now := s.now()

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok && now.Before(cached.expiresAt) {
		s.mu.Unlock()
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for route alternatives")
		return cached.alternatives, false
	}
	s.mu.Unlock()

	alts, err := s.provider.Alternatives(ctx, origin, destination)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if cached, ok := s.cache[key]; ok && now.Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().Err(err).
				Time("fetched_at", cached.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale route alternatives due to provider error")
			return cached.alternatives, false
		}
		s.logger.Warn().Err(err).
			Str("provider", s.provider.Name()).
			Str("origin", origin.String()).
			Str("destination", destination.String()).
			Msg("routing engine unavailable, using straight-line estimates")
		return nil, true
	}

	s.cache[key] = &cachedAlternatives{
		alternatives: alts,
		fetchedAt:    now,
		expiresAt:    now.Add(s.cacheTTL),
	}
	s.cleanupLocked(now)
	return alts, false
}

// cacheKey quantizes both endpoints to the cache grid.
func (s *Service) cacheKey(origin, destination geo.Coordinate) string {
	o := origin.Quantize(s.cacheGridSize)
	d := destination.Quantize(s.cacheGridSize)
	return fmt.Sprintf("%.4f,%.4f:%.4f,%.4f", o.Lat, o.Lng, d.Lat, d.Lng)
}

func (s *Service) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, c := range s.cache {
		if now.After(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Debug().Int("expired_entries", expired).Msg("cleaned up routing cache")
	}
}

// CacheStats reports cache occupancy.
func (s *Service) CacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := CacheStats{TotalEntries: len(s.cache)}
	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			stats.FreshEntries++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stats.StaleEntries++
		}
	}
	return stats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
}

func validate(req SuggestRequest) error {
	if err := req.Origin.Validate(); err != nil {
		return &Error{Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)}
	}
	if err := req.Destination.Validate(); err != nil {
		return &Error{Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)}
	}
	return nil
}
