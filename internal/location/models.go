// Package location bridges device position samples to a live "latest
// location" value and a throttled, schema-tolerant persistence path.
package location

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Domain errors.
var (
	ErrMissingUser       = errors.New("user id is required")
	ErrNotFound          = errors.New("no stored location")
	ErrPersistFailed     = errors.New("location could not be persisted")
	ErrSourceUnavailable = errors.New("position source unavailable")
	ErrUnknownVariant    = errors.New("unknown location schema variant")
)

// CheckinType distinguishes tracked samples from manual check-ins.
type CheckinType string

const (
	CheckinAutomatic CheckinType = "automatic"
	CheckinManual    CheckinType = "manual"
)

// SchemaVariant is one insert shape for user_locations.
type SchemaVariant string

const (
	VariantAuto    SchemaVariant = "auto"
	VariantFull    SchemaVariant = "full"
	VariantArea    SchemaVariant = "area"
	VariantCity    SchemaVariant = "city"
	VariantMinimal SchemaVariant = "minimal"
)

// FallbackChain is the order in which insert shapes are tried in auto mode.
var FallbackChain = []SchemaVariant{VariantFull, VariantArea, VariantCity, VariantMinimal}

// ParseSchemaVariant parses a configured variant; "" means auto.
func ParseSchemaVariant(s string) (SchemaVariant, error) {
	v := SchemaVariant(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "":
		return VariantAuto, nil
	case VariantAuto, VariantFull, VariantArea, VariantCity, VariantMinimal:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Chain returns the variants to try for v.
func (v SchemaVariant) Chain() []SchemaVariant {
	if v == "" || v == VariantAuto {
		return FallbackChain
	}
	return []SchemaVariant{v}
}

// Sample is one device position reading.
type Sample struct {
	Coordinate geo.Coordinate
	Accuracy   *float64 // meters
	Altitude   *float64 // meters
	AreaName   *string
	City       *string
	CapturedAt time.Time
}

// StoredLocation is a persisted user_locations row.
type StoredLocation struct {
	ID             string
	UserID         string
	Coordinate     geo.Coordinate
	AccuracyMeters *int
	AltitudeMeters *float64
	AreaName       *string
	City           *string
	CheckinType    CheckinType
	CreatedAt      time.Time
}

// DisplayName returns the area name, falling back to the city.
func (l StoredLocation) DisplayName() string {
	if l.AreaName != nil && *l.AreaName != "" {
		return *l.AreaName
	}
	if l.City != nil {
		return *l.City
	}
	return ""
}

// Source of a Latest value.
const (
	SourceDevice = "device"
	SourceStore  = "store"
)

// Latest is the most recent known location of a user.
type Latest struct {
	Coordinate geo.Coordinate
	Accuracy   *float64
	AreaName   *string
	City       *string
	UpdatedAt  time.Time
	Source     string
}

// LatestFromStored converts a stored row.
func LatestFromStored(l *StoredLocation) Latest {
	out := Latest{
		Coordinate: l.Coordinate,
		AreaName:   l.AreaName,
		City:       l.City,
		UpdatedAt:  l.CreatedAt,
		Source:     SourceStore,
	}
	if l.AccuracyMeters != nil {
		acc := float64(*l.AccuracyMeters)
		out.Accuracy = &acc
	}
	return out
}

// Label returns the area name, falling back to the city.
func (l Latest) Label() string {
	if l.AreaName != nil && *l.AreaName != "" {
		return *l.AreaName
	}
	if l.City != nil {
		return *l.City
	}
	return ""
}

// InsertPayload is the column set written for one variant.
// Nil pointers are omitted from the statement.
type InsertPayload struct {
	UserID         string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *int
	AltitudeMeters *float64
	AreaName       *string
	City           *string
	CheckinType    CheckinType
}

// PayloadFor builds the insert payload of variant v.
func PayloadFor(v SchemaVariant, userID string, s Sample, checkin CheckinType) InsertPayload {
	p := InsertPayload{
		UserID:    userID,
		Latitude:  s.Coordinate.Lat,
		Longitude: s.Coordinate.Lng,
	}
	switch v {
	case VariantFull:
		if s.Accuracy != nil {
			acc := int(math.Round(*s.Accuracy))
			p.AccuracyMeters = &acc
		}
		p.AltitudeMeters = s.Altitude
		p.AreaName = s.AreaName
		p.City = s.City
		p.CheckinType = checkin
	case VariantArea:
		p.AreaName = s.AreaName
	case VariantCity:
		// Older schemas only carry city; fall back to the area label.
		p.City = s.City
		if p.City == nil {
			p.City = s.AreaName
		}
	}
	return p
}

// row is the JSON shape of a user_locations row in change events.
type row struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters *int      `json:"accuracy_meters,omitempty"`
	AltitudeMeters *float64  `json:"altitude_meters,omitempty"`
	AreaName       *string   `json:"area_name,omitempty"`
	City           *string   `json:"city,omitempty"`
	CheckinType    string    `json:"checkin_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toRow(l *StoredLocation) row {
	return row{
		ID:             l.ID,
		UserID:         l.UserID,
		Latitude:       l.Coordinate.Lat,
		Longitude:      l.Coordinate.Lng,
		AccuracyMeters: l.AccuracyMeters,
		AltitudeMeters: l.AltitudeMeters,
		AreaName:       l.AreaName,
		City:           l.City,
		CheckinType:    string(l.CheckinType),
		CreatedAt:      l.CreatedAt,
	}
}

func (r row) stored() *StoredLocation {
	return &StoredLocation{
		ID:             r.ID,
		UserID:         r.UserID,
		Coordinate:     geo.Coordinate{Lat: r.Latitude, Lng: r.Longitude},
		AccuracyMeters: r.AccuracyMeters,
		AltitudeMeters: r.AltitudeMeters,
		AreaName:       r.AreaName,
		City:           r.City,
		CheckinType:    CheckinType(r.CheckinType),
		CreatedAt:      r.CreatedAt,
	}
}

func coordinateOf(p InsertPayload) geo.Coordinate {
	return geo.Coordinate{Lat: p.Latitude, Lng: p.Longitude}
}
