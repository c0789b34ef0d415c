// Package geo provides coordinate validation and great-circle distance helpers.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for all distance calculations.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned when a coordinate is not finite or out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewCoordinate builds a Coordinate and validates it.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Quantize snaps the coordinate to a grid with the given cell size in degrees.
// A non-positive precision returns the coordinate unchanged.
func (c Coordinate) Quantize(precision float64) Coordinate {
	if precision <= 0 {
		return c
	}
	return Coordinate{
		Lat: math.Round(c.Lat/precision) * precision,
		Lng: math.Round(c.Lng/precision) * precision,
	}
}

// String formats the coordinate with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// DistanceKm returns the haversine great-circle distance between a and b.
// Callers are expected to pass finite coordinates.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	angle := s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return angle.Radians() * EarthRadiusKm
}

// PathLengthKm sums the distance between consecutive points.
func PathLengthKm(points []Coordinate) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1], points[i])
	}
	return total
}
