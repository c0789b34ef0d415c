// Package alerts counts and lists recent safety alerts and keeps those
// counts live from table changes.
package alerts

import (
	"errors"
	"strings"
	"time"
)

// Cutoff windows used by the consumers of the aggregator.
const (
	RouteWindow     = 6 * time.Hour
	DashboardWindow = 24 * time.Hour
)

// ErrAlertNotFound is returned when an alert does not exist.
var ErrAlertNotFound = errors.New("safety alert not found")

// Severity of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a safety_alerts row. A nil ValidFrom means the alert is current.
type Alert struct {
	ID          string     `json:"id"`
	Severity    Severity   `json:"severity"`
	City        *string    `json:"city,omitempty"`
	Description string     `json:"description"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
}

// ActiveAt reports whether the alert falls inside [now-window, now].
func (a *Alert) ActiveAt(now time.Time, window time.Duration) bool {
	if a.ValidFrom == nil {
		return true
	}
	return !a.ValidFrom.Before(now.Add(-window)) && !a.ValidFrom.After(now)
}

// InCity reports whether the alert belongs to city; an empty city matches all.
func (a *Alert) InCity(city string) bool {
	if city == "" {
		return true
	}
	return a.City != nil && strings.EqualFold(*a.City, city)
}

// Query selects alerts for a listing.
type Query struct {
	City  string    // optional
	Since time.Time // alerts with a ValidFrom before Since are skipped
	Limit int       // 0 means no limit
}
