// Package routing produces the three scored "safer route" options between two
// points from routing-engine alternatives and the live alert count.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing engine is down or its circuit is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates the engine found no route between the points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the engine rejected the call for quota reasons.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates an origin or destination out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// MaxAlternatives is the number of alternatives consumed from a routing engine.
const MaxAlternatives = 3

// Provider is a routing engine returning up to MaxAlternatives alternatives.
type Provider interface {
	Alternatives(ctx context.Context, origin, destination geo.Coordinate) ([]Alternative, error)
	Name() string
}

// Alternative is one route returned by a routing engine.
type Alternative struct {
	DistanceKm      float64
	DurationMinutes int
	Geometry        []geo.Coordinate
}

// Variant names a route-scoring preset.
type Variant string

const (
	VariantFastest  Variant = "fastest"
	VariantBalanced Variant = "balanced"
	VariantSafest   Variant = "safest"
)

// RiskLevel buckets a safety score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RouteOption is a scored route variant. It is derived and never persisted.
type RouteOption struct {
	ID              Variant   `json:"id"`
	DurationMinutes int       `json:"durationMinutes"`
	DistanceKm      float64   `json:"distanceKm"`
	SafetyScore     int       `json:"safetyScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Highlights      []string  `json:"highlights"`

	// Polyline is the encoded engine geometry; empty for straight-line estimates.
	Polyline string `json:"polyline,omitempty"`
	// Estimated is true when distance and duration come from the straight-line fallback.
	Estimated bool `json:"estimated"`
}

// Suggestion is the result of a route request.
type Suggestion struct {
	Options      []RouteOption `json:"options"`
	ActiveAlerts int           `json:"activeAlerts"`
	// Degraded is set when the routing engine could not be used.
	Degraded    bool      `json:"degraded"`
	Provider    string    `json:"provider,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Error provides detailed error information from a routing engine.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports transient failures.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
