// Package nominatim implements geocoding.Geocoder against the OpenStreetMap Nominatim API.
package nominatim

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

	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
	"github.com/dexxeth/tourist-safety-shield/internal/provider/resilience"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent is required by the Nominatim usage policy.
	DefaultUserAgent = "tourist-safety-shield/1.0"

	reverseZoom = "14"
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string

	// Language is sent as Accept-Language. Empty omits the header.
	Language string

	// HTTPClient overrides the default non-retrying resilient client.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
	Logger     zerolog.Logger
}

// Client is a Nominatim API client.
type Client struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ geocoding.Geocoder = (*Client)(nil)

// NewClient creates a Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = geocoding.DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		clientCfg := resilience.NoRetryClientConfig(ProviderName, cfg.Timeout)
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		cfg.HTTPClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		language:   cfg.Language,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Reverse resolves a coordinate into area, city and display name.
func (c *Client) Reverse(ctx context.Context, at geo.Coordinate) (geocoding.Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lng, 'f', -1, 64))
	q.Set("zoom", reverseZoom)
	q.Set("addressdetails", "1")

	var body reverseResponse
	if err := c.get(ctx, "/reverse", q, &body); err != nil {
		return geocoding.Place{}, err
	}
	if body.Error != "" {
		// Nominatim answers 200 with an error field for points it cannot resolve.
		c.logger.Debug().Str("error", body.Error).Msg("nominatim could not resolve point")
		return geocoding.Place{}, nil
	}

	return geocoding.Place{
		Area:        pick(body.Address, areaKeys),
		City:        pick(body.Address, cityKeys),
		DisplayName: geocoding.FirstNonEmpty(body.DisplayName),
	}, nil
}

// Search performs forward geocoding. Results with unparsable or non-finite
// coordinates are dropped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Result, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var items []searchItem
	if err := c.get(ctx, "/search", q, &items); err != nil {
		return nil, err
	}

	results := make([]geocoding.Result, 0, len(items))
	for _, item := range items {
		lat, errLat := strconv.ParseFloat(item.Lat, 64)
		lng, errLng := strconv.ParseFloat(item.Lon, 64)
		if errLat != nil || errLng != nil || !finite(lat) || !finite(lng) {
			continue
		}
		results = append(results, geocoding.Result{DisplayName: item.DisplayName, Lat: lat, Lng: lng})
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      fmt.Errorf("%w: %v", geocoding.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return statusError(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "could not decode response",
			Err:      fmt.Errorf("%w: %v", geocoding.ErrMalformedResponse, err),
		}
	}
	return nil
}

func statusError(status int) error {
	sentinel := geocoding.ErrProviderUnavailable
	if status == http.StatusTooManyRequests || status == http.StatusForbidden {
		sentinel = geocoding.ErrRateLimited
	}
	return &geocoding.Error{
		Provider: ProviderName,
		Code:     fmt.Sprintf("HTTP_%d", status),
		Message:  fmt.Sprintf("provider returned status %d", status),
		Err:      sentinel,
	}
}

func pick(address map[string]string, keys []string) *string {
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, address[k])
	}
	return geocoding.FirstNonEmpty(values...)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
