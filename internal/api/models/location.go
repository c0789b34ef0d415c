package models

import (
	"time"

	"github.com/dexxeth/tourist-safety-shield/internal/location"
)

// LocationSampleRequest is the body of POST /v1/locations and
// POST /v1/locations/share.
type LocationSampleRequest struct {
	Point
	Accuracy   *float64   `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Altitude   *float64   `json:"altitude,omitempty"`
	AreaName   *string    `json:"areaName,omitempty" validate:"omitempty,max=200"`
	City       *string    `json:"city,omitempty" validate:"omitempty,max=120"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
}

// Sample converts the request.
func (r LocationSampleRequest) Sample() location.Sample {
	s := location.Sample{
		Coordinate: r.Coordinate(),
		Accuracy:   r.Accuracy,
		Altitude:   r.Altitude,
		AreaName:   r.AreaName,
		City:       r.City,
	}
	if r.CapturedAt != nil {
		s.CapturedAt = *r.CapturedAt
	}
	return s
}

// LatestLocation is the live location of the caller.
type LatestLocation struct {
	Point
	Accuracy  *float64  `json:"accuracy,omitempty"`
	AreaName  *string   `json:"areaName,omitempty"`
	City      *string   `json:"city,omitempty"`
	Source    string    `json:"source"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// LatestFrom converts a location.Latest.
func LatestFrom(l location.Latest) LatestLocation {
	return LatestLocation{
		Point:     PointFrom(l.Coordinate),
		Accuracy:  l.Accuracy,
		AreaName:  l.AreaName,
		City:      l.City,
		Source:    l.Source,
		UpdatedAt: Timestamp(l.UpdatedAt),
	}
}

// StoredLocation is a persisted location row.
type StoredLocation struct {
	ID string `json:"id"`
	Point
	AccuracyMeters *int      `json:"accuracyMeters,omitempty"`
	AreaName       *string   `json:"areaName,omitempty"`
	City           *string   `json:"city,omitempty"`
	CheckinType    string    `json:"checkinType,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// StoredFrom converts a persisted row.
func StoredFrom(l *location.StoredLocation) StoredLocation {
	return StoredLocation{
		ID:             l.ID,
		Point:          PointFrom(l.Coordinate),
		AccuracyMeters: l.AccuracyMeters,
		AreaName:       l.AreaName,
		City:           l.City,
		CheckinType:    string(l.CheckinType),
		CreatedAt:      Timestamp(l.CreatedAt),
	}
}

// RecordLocationResponse reports the outcome of a tracked sample.
type RecordLocationResponse struct {
	Latest    LatestLocation  `json:"latest"`
	Persisted bool            `json:"persisted"`
	Throttled bool            `json:"throttled"`
	Stored    *StoredLocation `json:"stored,omitempty"`
}
