// Package osrm provides a routing.Provider backed by an OSRM route service.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/internal/routing"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "osrm"

	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultProfile is the OSRM profile segment of the URL.
	DefaultProfile = "driving"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	BaseURL    string
	Profile    string
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
	Logger     zerolog.Logger
}

// Client is an OSRM route service client.
type Client struct {
	baseURL    string
	profile    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout <= 0 {
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

// Alternatives requests up to routing.MaxAlternatives routes.
func (c *Client) Alternatives(ctx context.Context, origin, destination geo.Coordinate) ([]routing.Alternative, error) {
	if origin.Validate() != nil || destination.Validate() != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_COORDINATES",
			Message:  "invalid origin or destination",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("alternatives", "true")

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s;%s?%s",
		c.baseURL, c.profile, lngLat(origin), lngLat(destination), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("origin", origin.String()).
		Str("destination", destination.String()).
		Msg("requesting routes from OSRM")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var parsed routeResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK || parsed.Code != codeOK {
		return nil, mapError(resp.StatusCode, parsed, decodeErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}

	alts := toAlternatives(parsed.Routes)
	c.logger.Debug().Int("route_count", len(alts)).Msg("received routes from OSRM")
	return alts, nil
}

func toAlternatives(routes []route) []routing.Alternative {
	if len(routes) > routing.MaxAlternatives {
		routes = routes[:routing.MaxAlternatives]
	}

	alts := make([]routing.Alternative, 0, len(routes))
	for _, r := range routes {
		minutes := int(math.Round(r.Duration / 60))
		if minutes < 1 {
			minutes = 1
		}

		geometry := make([]geo.Coordinate, 0, len(r.Geometry.Coordinates))
		for _, pair := range r.Geometry.Coordinates {
			if len(pair) >= 2 {
				geometry = append(geometry, geo.Coordinate{Lat: pair[1], Lng: pair[0]})
			}
		}

		alts = append(alts, routing.Alternative{
			DistanceKm:      r.Distance / 1000,
			DurationMinutes: minutes,
			Geometry:        geometry,
		})
	}
	return alts
}

func mapError(status int, body routeResponse, decodeErr error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: "routing rate limit exceeded", Err: routing.ErrRateLimitExceeded}
	case status >= http.StatusInternalServerError:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("SERVER_%d", status), Message: "routing provider is temporarily unavailable", Err: routing.ErrProviderUnavailable}
	case decodeErr != nil:
		return &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", status), Message: "unreadable routing response", Err: routing.ErrProviderUnavailable}
	}

	switch body.Code {
	case codeNoRoute, codeNoSegment:
		return &routing.Error{Provider: ProviderName, Code: body.Code, Message: body.Message, Err: routing.ErrNoRouteFound}
	case codeInvalidQuery, codeInvalidValue:
		return &routing.Error{Provider: ProviderName, Code: body.Code, Message: body.Message, Err: routing.ErrInvalidCoordinates}
	default:
		return &routing.Error{Provider: ProviderName, Code: body.Code, Message: "routing provider error: " + body.Message, Err: routing.ErrProviderUnavailable}
	}
}

func lngLat(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}
