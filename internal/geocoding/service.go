package geocoding

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// DefaultTimeout bounds a single geocoding call.
const DefaultTimeout = 8 * time.Second

// DefaultSearchLimit is used when the caller passes a non-positive limit.
const DefaultSearchLimit = 5

// ServiceConfig configures the best-effort geocoding service.
type ServiceConfig struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Service wraps a Geocoder so that failures degrade to empty results.
// Calls are neither retried nor cached.
type Service struct {
	geocoder Geocoder
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewService creates a Service.
func NewService(geocoder Geocoder, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Service{
		geocoder: geocoder,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With().Str("component", "geocoding").Logger(),
	}
}

// ReverseGeocode resolves a coordinate. Any failure yields the all-nil Place.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lng float64) Place {
	at := geo.Coordinate{Lat: lat, Lng: lng}
	if err := at.Validate(); err != nil {
		return Place{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	place, err := s.geocoder.Reverse(ctx, at)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", s.geocoder.Name()).Msg("reverse geocoding failed")
		return Place{}
	}
	return place
}

// ForwardGeocode searches for query. An empty query returns an empty list
// without contacting the provider; failures also return an empty list.
func (s *Service) ForwardGeocode(ctx context.Context, query string, limit int) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.geocoder.Search(ctx, query, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", s.geocoder.Name()).Msg("forward geocoding failed")
		return []Result{}
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) || math.IsNaN(r.Lng) || math.IsInf(r.Lng, 0) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}
