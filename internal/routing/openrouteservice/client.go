// Package openrouteservice provides a routing.Provider backed by the
// OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultProfile is the ORS profile used for tourists on the road.
	DefaultProfile = "driving-car"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// Profile is the ORS routing profile (optional, defaults to driving-car).
	Profile string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	profile    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = cfg.Timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		cfg.HTTPClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		profile:    cfg.Profile,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Alternatives requests the primary route plus up to two alternatives.
func (c *Client) Alternatives(ctx context.Context, origin, destination geo.Coordinate) ([]routing.Alternative, error) {
	if origin.Validate() != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: routing.ErrInvalidCoordinates}
	}
	if destination.Validate() != nil {
		return nil, &routing.Error{Provider: ProviderName, Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: routing.ErrInvalidCoordinates}
	}

	body, err := json.Marshal(directionsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates: [][]float64{
			{origin.Lng, origin.Lat},
			{destination.Lng, destination.Lat},
		},
		AlternativeRoutes: &alternativeRoutes{
			TargetCount:  routing.MaxAlternatives,
			ShareFactor:  0.6,
			WeightFactor: 1.4,
		},
		Units: "m",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/geojson", c.baseURL, c.profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/geo+json, application/json")

	c.logger.Debug().
		Str("profile", c.profile).
		Str("origin", origin.String()).
		Str("destination", destination.String()).
		Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapErrorResponse(resp.StatusCode, respBody)
	}

	var fc featureCollection
	if err := json.Unmarshal(respBody, &fc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	alts := make([]routing.Alternative, 0, routing.MaxAlternatives)
	for _, f := range fc.Features {
		if len(alts) == routing.MaxAlternatives {
			break
		}
		minutes := int(math.Round(f.Properties.Summary.Duration / 60))
		if minutes < 1 {
			minutes = 1
		}
		geometry := make([]geo.Coordinate, 0, len(f.Geometry.Coordinates))
		for _, pair := range f.Geometry.Coordinates {
			if len(pair) >= 2 {
				geometry = append(geometry, geo.Coordinate{Lat: pair[1], Lng: pair[0]})
			}
		}
		alts = append(alts, routing.Alternative{
			DistanceKm:      f.Properties.Summary.Distance / 1000,
			DurationMinutes: minutes,
			Geometry:        geometry,
		})
	}

	c.logger.Debug().Int("route_count", len(alts)).Msg("received directions from ORS")
	return alts, nil
}

// mapErrorResponse maps ORS error responses to routing errors.
func mapErrorResponse(statusCode int, body []byte) error {
	var orsErr errorResponse
	_ = json.Unmarshal(body, &orsErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "API rate limit exceeded, please try again later", Err: routing.ErrRateLimitExceeded}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: "API access denied - check API key configuration", Err: routing.ErrProviderUnavailable}
	case statusCode == http.StatusNotFound || orsErr.Error.Code == errorCodeRouteNotFound || orsErr.Error.Code == errorCodePointNotFound:
		return &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: "no route found between the given points", Err: routing.ErrNoRouteFound}
	case statusCode == http.StatusBadRequest:
		return &routing.Error{Provider: ProviderName, Code: "BAD_REQUEST", Message: orsErr.Error.Message, Err: routing.ErrInvalidCoordinates}
	case statusCode >= http.StatusInternalServerError:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("SERVER_%d", statusCode), Message: "routing provider is temporarily unavailable", Err: routing.ErrProviderUnavailable}
	default:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", statusCode), Message: fmt.Sprintf("routing provider returned status %d", statusCode), Err: routing.ErrProviderUnavailable}
	}
}
