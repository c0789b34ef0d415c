// Package places ranks catalog entities and curated points by distance
// from a live origin.
package places

import (
	"time"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Defaults used by the finders.
const (
	DefaultNearbyLimit  = 8
	DefaultHelpRadiusKm = 8.0
	DefaultPopularLimit = 5
)

// Accommodation is a catalog row. Coordinate is nil when the row has no
// position; such rows are never ranked.
type Accommodation struct {
	ID             string
	Name           string
	Address        *string
	City           *string
	Coordinate     *geo.Coordinate
	SafetyFeatures []string
	Rating         *float64
	CreatedAt      time.Time
}

// NearbyEntity is an accommodation or help point ranked against an origin.
// DistanceKm is nil when no origin was given.
type NearbyEntity struct {
	ID             string
	Name           string
	Coordinate     geo.Coordinate
	Address        *string
	City           *string
	SafetyFeatures []string
	DistanceKm     *float64
}

// HelpKind classifies a curated help point.
type HelpKind string

const (
	HelpPolice   HelpKind = "police"
	HelpHospital HelpKind = "hospital"
	HelpEmbassy  HelpKind = "embassy"
	HelpTourist  HelpKind = "tourist_office"
)

// HelpPoint is a curated emergency-relevant location.
type HelpPoint struct {
	Name       string
	Kind       HelpKind
	Coordinate geo.Coordinate
	City       string
}

// RankedHelpPoint is a HelpPoint with its distance from the origin.
type RankedHelpPoint struct {
	HelpPoint
	DistanceKm float64
}

// PopularPlace is a curated sightseeing destination.
type PopularPlace struct {
	Name       string
	City       string
	Coordinate geo.Coordinate
}
