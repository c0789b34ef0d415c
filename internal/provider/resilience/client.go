package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// RetryConfig controls retries of transient failures (network errors and 5xx).
type RetryConfig struct {
	// MaxRetries is the number of additional attempts. Zero disables retries.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ClientConfig holds configuration for a provider HTTP client.
type ClientConfig struct {
	// Name identifies the provider in logs, the breaker and the registry.
	Name string

	// Timeout bounds each individual HTTP attempt. Default: 10 seconds.
	Timeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig

	// Registry, when set, receives success/failure bookkeeping for health reporting.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns a 10 second timeout, three retries and the default breaker.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:    name,
		Timeout: 10 * time.Second,
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

// NoRetryClientConfig is used for providers that must never be retried,
// such as the geocoder.
func NoRetryClientConfig(name string, timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig(name)
	cfg.Timeout = timeout
	cfg.Retry = RetryConfig{}
	return cfg
}

// Client executes provider requests through a circuit breaker with optional retries.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryConfig
	registry   *Registry
}

// NewClient creates a provider client and registers it when a registry is configured.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = 100 * time.Millisecond
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = 5 * time.Second
	}

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker[*http.Response](cfg.Name, cfg.Breaker, cfg.Logger),
		retry:      cfg.Retry,
		registry:   cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req. A 5xx response that survives all retries is returned as a
// response, not an error, so callers can map it to a provider error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.retry.MaxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retry.InitialInterval
		exp.MaxInterval = c.retry.MaxInterval
		exp.MaxElapsedTime = 0
		bo = backoff.WithMaxRetries(exp, c.retry.MaxRetries)
	}

	var last *http.Response
	attempt := func() error {
		if last != nil {
			_ = last.Body.Close()
			last = nil
		}
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			clone := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				clone.Body = body
			}
			r, err := c.httpClient.Do(clone)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		last = resp
		return err
	}

	err := backoff.Retry(attempt, backoff.WithContext(bo, ctx))
	if err != nil {
		c.recordFailure(err)
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	c.recordSuccess()
	return last, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
}

// ServerError is a 5xx response from a provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}
