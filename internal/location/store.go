package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/database"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
)

// ReverseGeocoder resolves a coordinate to a best-effort place.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) geocoding.Place
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Repository Repository

	// Throttle defaults to a LocalThrottle with ThrottleWindow.
	Throttle       Throttle
	ThrottleWindow time.Duration

	// Variant pins one insert shape; VariantAuto tries FallbackChain.
	Variant SchemaVariant

	// Geocoder fills area and city when a sample carries neither. Optional.
	Geocoder ReverseGeocoder

	// Observer counts sample outcomes. Optional.
	Observer SampleObserver

	Logger zerolog.Logger
	Now    func() time.Time
}

// SampleObserver is told the outcome of every recorded sample.
type SampleObserver interface {
	LocationSample(ctx context.Context, outcome string)
}

// Sample outcomes.
const (
	OutcomePersisted = "persisted"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"
)

// RecordResult reports what happened to one sample.
type RecordResult struct {
	Latest    Latest
	Persisted bool
	Throttled bool
	Location  *StoredLocation
}

// Store holds live per-user latest values and persists throttled samples.
type Store struct {
	repo     Repository
	throttle Throttle
	variant  SchemaVariant
	geocoder ReverseGeocoder
	observer SampleObserver
	logger   zerolog.Logger
	now      func() time.Time

	latest cmap.ConcurrentMap[string, Latest]

	mu        sync.Mutex
	listeners map[string]map[uint64]chan Latest
	nextID    uint64
}

// NewStore creates a Store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.Throttle == nil {
		cfg.Throttle = NewLocalThrottle(cfg.ThrottleWindow)
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantAuto
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		repo:      cfg.Repository,
		throttle:  cfg.Throttle,
		variant:   cfg.Variant,
		geocoder:  cfg.Geocoder,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With().Str("component", "location_store").Logger(),
		now:       cfg.Now,
		latest:    cmap.New[Latest](),
		listeners: make(map[string]map[uint64]chan Latest),
	}
}

// Variant returns the configured schema variant.
func (s *Store) Variant() SchemaVariant {
	return s.variant
}

// Record accepts a tracked sample. The live value is updated immediately;
// persistence is throttled and best-effort. Only invalid input is an error.
func (s *Store) Record(ctx context.Context, userID string, sample Sample) (*RecordResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := sample.Coordinate.Validate(); err != nil {
		return nil, err
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = s.now()
	}

	res := &RecordResult{Latest: s.observe(userID, sample)}

	allowed, err := s.throttle.Allow(ctx, userID, s.now())
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("throttle unavailable, skipping persistence")
		res.Throttled = true
		s.count(ctx, OutcomeThrottled)
		return res, nil
	}
	if !allowed {
		res.Throttled = true
		s.count(ctx, OutcomeThrottled)
		return res, nil
	}

	s.enrich(ctx, userID, &sample)

	loc, err := s.persist(ctx, userID, sample, CheckinAutomatic)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("dropping location sample")
		s.count(ctx, OutcomeFailed)
		return res, nil
	}
	s.count(ctx, OutcomePersisted)
	res.Persisted = true
	res.Location = loc
	if l, ok := s.latest.Get(userID); ok {
		res.Latest = l
	}
	return res, nil
}

// Share persists a manual check-in, bypassing the throttle.
func (s *Store) Share(ctx context.Context, userID string, sample Sample) (*StoredLocation, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := sample.Coordinate.Validate(); err != nil {
		return nil, err
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = s.now()
	}

	s.enrich(ctx, "", &sample)

	loc, err := s.persist(ctx, userID, sample, CheckinManual)
	if err != nil {
		return nil, err
	}
	s.observe(userID, sample)
	return loc, nil
}

// Latest returns the newer of the live value and the newest stored row.
func (s *Store) Latest(ctx context.Context, userID string) (Latest, bool) {
	live, hasLive := s.latest.Get(userID)

	stored, err := s.repo.Latest(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read stored location")
		}
		return live, hasLive
	}

	fromStore := LatestFromStored(stored)
	if !hasLive || fromStore.UpdatedAt.After(live.UpdatedAt) {
		return fromStore, true
	}
	return live, true
}

// Recent returns stored rows of a user, newest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]*StoredLocation, error) {
	return s.repo.ListRecent(ctx, userID, limit)
}

func (s *Store) observe(userID string, sample Sample) Latest {
	next := Latest{
		Coordinate: sample.Coordinate,
		Accuracy:   sample.Accuracy,
		AreaName:   sample.AreaName,
		City:       sample.City,
		UpdatedAt:  sample.CapturedAt,
		Source:     SourceDevice,
	}
	current := s.latest.Upsert(userID, next, func(exist bool, prev, next Latest) Latest {
		if exist && prev.UpdatedAt.After(next.UpdatedAt) {
			return prev
		}
		return next
	})
	if current.UpdatedAt.Equal(next.UpdatedAt) {
		s.notify(userID, current)
	}
	return current
}

// enrich reverse-geocodes a sample without area or city. When userID is
// set, the live value of the same sample is labelled too.
func (s *Store) enrich(ctx context.Context, userID string, sample *Sample) {
	if s.geocoder == nil || sample.AreaName != nil || sample.City != nil {
		return
	}
	place := s.geocoder.ReverseGeocode(ctx, sample.Coordinate.Lat, sample.Coordinate.Lng)
	if place.IsEmpty() {
		return
	}
	sample.AreaName = place.Area
	sample.City = place.City

	if userID == "" {
		return
	}
	s.latest.Upsert(userID, Latest{}, func(exist bool, prev, _ Latest) Latest {
		if exist && prev.UpdatedAt.Equal(sample.CapturedAt) && prev.AreaName == nil && prev.City == nil {
			prev.AreaName = place.Area
			prev.City = place.City
		}
		return prev
	})
}

// persist walks the variant chain until one insert succeeds. A grouping
// error comes from a trigger on the table and repeats for every shape.
func (s *Store) persist(ctx context.Context, userID string, sample Sample, checkin CheckinType) (*StoredLocation, error) {
	var lastErr error
	for _, v := range s.variant.Chain() {
		loc, err := s.repo.Insert(ctx, v, PayloadFor(v, userID, sample, checkin))
		if err == nil {
			return loc, nil
		}
		lastErr = err
		code := database.SQLState(err)
		s.logger.Debug().Err(err).
			Str("user_id", userID).
			Str("variant", string(v)).
			Str("sqlstate", code).
			Msg("location insert failed")
		if code == database.CodeGroupingError {
			s.logger.Warn().Str("user_id", userID).Msg("user_locations trigger fails with a grouping error, not retrying other shapes")
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrPersistFailed, lastErr)
}

func (s *Store) subscribe(userID string) (<-chan Latest, func()) {
	ch := make(chan Latest, 8)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.listeners[userID] == nil {
		s.listeners[userID] = make(map[uint64]chan Latest)
	}
	s.listeners[userID][id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.listeners[userID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.listeners, userID)
			}
		}
	}
}

func (s *Store) notify(userID string, l Latest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners[userID] {
		select {
		case ch <- l:
		default:
		}
	}
}

func (s *Store) count(ctx context.Context, outcome string) {
	if s.observer != nil {
		s.observer.LocationSample(ctx, outcome)
	}
}
