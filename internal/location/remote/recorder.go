// Package remote records tracked positions through the HTTP API, for
// devices that run the tracker away from the server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dexxeth/tourist-safety-shield/internal/api/models"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
)

// DefaultTimeout bounds one upload.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized is returned when the API rejects the access token.
var ErrUnauthorized = errors.New("api rejected the access token")

// Config configures a Recorder.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com.
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RetryCount  int
}

// Recorder posts samples to POST /v1/locations. The user is the subject of
// the access token; the userID argument of Record is only checked for presence.
type Recorder struct {
	client *resty.Client
}

var _ location.Recorder = (*Recorder)(nil)

// New creates a Recorder.
func New(cfg Config) *Recorder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.AccessToken).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Recorder{client: client}
}

// Record uploads one sample.
func (r *Recorder) Record(ctx context.Context, userID string, sample location.Sample) (*location.RecordResult, error) {
	if userID == "" {
		return nil, location.ErrMissingUser
	}
	if err := sample.Coordinate.Validate(); err != nil {
		return nil, err
	}

	body := models.LocationSampleRequest{
		Point:    models.PointFrom(sample.Coordinate),
		Accuracy: sample.Accuracy,
		Altitude: sample.Altitude,
		AreaName: sample.AreaName,
		City:     sample.City,
	}
	if !sample.CapturedAt.IsZero() {
		at := sample.CapturedAt
		body.CapturedAt = &at
	}

	var out models.RecordLocationResponse
	var problem models.Problem
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&problem).
		Post("/v1/locations")
	if err != nil {
		return nil, fmt.Errorf("upload location: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.IsError() {
		detail := problem.Detail
		if detail == "" {
			detail = resp.Status()
		}
		return nil, fmt.Errorf("upload location: %d %s", resp.StatusCode(), detail)
	}

	return &location.RecordResult{
		Latest: location.Latest{
			Coordinate: sample.Coordinate,
			Accuracy:   sample.Accuracy,
			AreaName:   sample.AreaName,
			City:       sample.City,
			UpdatedAt:  sample.CapturedAt,
			Source:     location.SourceDevice,
		},
		Persisted: out.Persisted,
		Throttled: out.Throttled,
	}, nil
}
