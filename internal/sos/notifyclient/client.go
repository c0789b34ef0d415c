// Package notifyclient calls a remote SOS notify endpoint.
package notifyclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dexxeth/tourist-safety-shield/internal/sos"
)

const (
	// DefaultTimeout bounds one notify call.
	DefaultTimeout = 10 * time.Second

	// ServiceTokenHeader carries the shared service token.
	ServiceTokenHeader = "X-Service-Token"

	notifyPath = "/sos/notify"
)

// Config configures the client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1.
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// Client posts notify requests. Calls are not retried; a duplicate SOS
// message to a contact is worse than a reported failure.
type Client struct {
	http *resty.Client
}

var _ sos.Notifier = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.ServiceToken != "" {
		rc.SetHeader(ServiceTokenHeader, cfg.ServiceToken)
	}
	return &Client{http: rc}
}

// Notify posts req and decodes the delivery report.
func (c *Client) Notify(ctx context.Context, req sos.NotifyRequest) (*sos.NotifyResponse, error) {
	var out sos.NotifyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(notifyPath)
	if err != nil {
		return nil, fmt.Errorf("call notify endpoint: %w", err)
	}
	if resp.IsError() {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("notify endpoint returned %d: %s", resp.StatusCode(), msg)
	}
	return &out, nil
}
