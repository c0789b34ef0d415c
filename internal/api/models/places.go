package models

import (
	"github.com/dexxeth/tourist-safety-shield/internal/places"
)

// NearbyPlace is an accommodation or help point near the caller.
type NearbyPlace struct {
	ID string `json:"id"`
	Point
	Name           string   `json:"name"`
	Address        *string  `json:"address,omitempty"`
	City           *string  `json:"city,omitempty"`
	SafetyFeatures []string `json:"safetyFeatures"`
	DistanceKm     *float64 `json:"distanceKm,omitempty"`
}

// HelpPoint is a curated police, hospital, embassy or tourist office.
type HelpPoint struct {
	Point
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	City       string  `json:"city"`
	DistanceKm float64 `json:"distanceKm"`
}

// PopularPlace is a curated destination.
type PopularPlace struct {
	Point
	Name string `json:"name"`
	City string `json:"city"`
}

// HelpResponse lists catalog entries with help features, plus curated help
// points when an origin is known.
type HelpResponse struct {
	Catalog []NearbyPlace `json:"catalog"`
	Curated []HelpPoint   `json:"curated"`
}

// NearbyFrom converts ranked entities.
func NearbyFrom(entities []places.NearbyEntity) []NearbyPlace {
	out := make([]NearbyPlace, 0, len(entities))
	for _, e := range entities {
		features := e.SafetyFeatures
		if features == nil {
			features = []string{}
		}
		out = append(out, NearbyPlace{
			ID:             e.ID,
			Point:          PointFrom(e.Coordinate),
			Name:           e.Name,
			Address:        e.Address,
			City:           e.City,
			SafetyFeatures: features,
			DistanceKm:     e.DistanceKm,
		})
	}
	return out
}

// HelpPointsFrom converts curated help points.
func HelpPointsFrom(points []places.RankedHelpPoint) []HelpPoint {
	out := make([]HelpPoint, 0, len(points))
	for _, p := range points {
		out = append(out, HelpPoint{
			Point:      PointFrom(p.Coordinate),
			Name:       p.Name,
			Kind:       string(p.Kind),
			City:       p.City,
			DistanceKm: p.DistanceKm,
		})
	}
	return out
}

// PopularFrom converts curated places.
func PopularFrom(items []places.PopularPlace) []PopularPlace {
	out := make([]PopularPlace, 0, len(items))
	for _, p := range items {
		out = append(out, PopularPlace{Point: PointFrom(p.Coordinate), Name: p.Name, City: p.City})
	}
	return out
}
