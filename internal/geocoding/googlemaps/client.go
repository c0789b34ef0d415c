// Package googlemaps implements geocoding.Geocoder with the Google Maps Geocoding API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// ProviderName identifies this provider.
const ProviderName = "googlemaps"

// ErrMissingAPIKey is returned by NewClient without an API key.
var ErrMissingAPIKey = errors.New("google maps api key is required")

// Address component types in order of preference.
var (
	areaTypes = []string{"neighborhood", "sublocality_level_1", "sublocality"}
	cityTypes = []string{"locality", "postal_town", "administrative_area_level_2"}
)

// ClientConfig holds configuration for the Google Maps geocoder.
type ClientConfig struct {
	APIKey   string
	BaseURL  string
	Language string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Client wraps maps.Client.
type Client struct {
	maps     *maps.Client
	language string
	logger   zerolog.Logger
}

var _ geocoding.Geocoder = (*Client)(nil)

// NewClient creates a Google Maps geocoder.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = geocoding.DefaultTimeout
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}

	return &Client{maps: mc, language: cfg.Language, logger: cfg.Logger}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Reverse resolves a coordinate using the first result's address components.
func (c *Client) Reverse(ctx context.Context, at geo.Coordinate) (geocoding.Place, error) {
	results, err := c.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: at.Lat, Lng: at.Lng},
		Language: c.language,
	})
	if err != nil {
		return geocoding.Place{}, wrap(err)
	}
	if len(results) == 0 {
		return geocoding.Place{}, nil
	}

	first := results[0]
	return geocoding.Place{
		Area:        component(first.AddressComponents, areaTypes),
		City:        component(first.AddressComponents, cityTypes),
		DisplayName: geocoding.FirstNonEmpty(first.FormattedAddress),
	}, nil
}

// Search geocodes a free-text address.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Result, error) {
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Language: c.language,
	})
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]geocoding.Result, 0, len(results))
	for _, r := range results {
		out = append(out, geocoding.Result{
			DisplayName: r.FormattedAddress,
			Lat:         r.Geometry.Location.Lat,
			Lng:         r.Geometry.Location.Lng,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func component(components []maps.AddressComponent, types []string) *string {
	for _, want := range types {
		for _, ac := range components {
			for _, t := range ac.Types {
				if t == want && ac.LongName != "" {
					name := ac.LongName
					return &name
				}
			}
		}
	}
	return nil
}

func wrap(err error) error {
	return &geocoding.Error{
		Provider: ProviderName,
		Code:     "REQUEST_FAILED",
		Message:  "google geocoding request failed",
		Err:      fmt.Errorf("%w: %v", geocoding.ErrProviderUnavailable, err),
	}
}
