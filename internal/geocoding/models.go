// Package geocoding resolves coordinates to place names and free text to coordinates.
package geocoding

import (
	"context"
	"errors"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

var (
	// ErrProviderUnavailable indicates a network failure, 5xx or open circuit.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	// ErrMalformedResponse indicates a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed geocoding response")
	// ErrRateLimited indicates the provider rejected the call for quota reasons.
	ErrRateLimited = errors.New("geocoding rate limit exceeded")
)

// Geocoder is implemented by geocoding providers.
type Geocoder interface {
	Reverse(ctx context.Context, at geo.Coordinate) (Place, error)
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// Place is the outcome of reverse geocoding. Any field may be nil.
type Place struct {
	City        *string `json:"city"`
	Area        *string `json:"area"`
	DisplayName *string `json:"displayName"`
}

// IsEmpty reports whether nothing was resolved.
func (p Place) IsEmpty() bool {
	return p.City == nil && p.Area == nil && p.DisplayName == nil
}

// Label returns the area, falling back to the city, or "".
func (p Place) Label() string {
	if p.Area != nil && *p.Area != "" {
		return *p.Area
	}
	if p.City != nil {
		return *p.City
	}
	return ""
}

// Result is one forward geocoding match.
type Result struct {
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Error is a provider failure.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FirstNonEmpty returns a pointer to the first non-empty value, or nil.
func FirstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v != "" {
			s := v
			return &s
		}
	}
	return nil
}
