package models

import (
	"github.com/dexxeth/tourist-safety-shield/internal/activity"
	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/geocoding"
)

// AlertsResponse is the body of GET /v1/alerts.
type AlertsResponse struct {
	City   string          `json:"city,omitempty"`
	Window string          `json:"window"`
	Alerts []*alerts.Alert `json:"alerts"`
}

// AlertCountResponse is the body of GET /v1/alerts/count.
type AlertCountResponse struct {
	City   string `json:"city,omitempty"`
	Window string `json:"window"`
	Count  int    `json:"count"`
}

// ActivityResponse is the body of GET /v1/activity.
type ActivityResponse struct {
	Items []activity.Item `json:"items"`
}

// SafetyScoreResponse is the body of GET /v1/profile/safety-score. Score
// is nil when nothing is stored.
type SafetyScoreResponse struct {
	Score *int `json:"score"`
}

// ReverseGeocodeResponse wraps a resolved place.
type ReverseGeocodeResponse struct {
	geocoding.Place
	Label string `json:"label"`
}

// SearchResponse lists forward geocoding matches.
type SearchResponse struct {
	Results []geocoding.Result `json:"results"`
}
