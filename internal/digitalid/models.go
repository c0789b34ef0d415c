// Package digitalid issues and verifies tourist digital IDs of the form
// TSS-YYYY-XXXXXX.
package digitalid

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no digital ID matches.
	ErrNotFound = errors.New("digital id not found")
	// ErrInvalidID is returned for identifiers that do not match the TSS pattern.
	ErrInvalidID = errors.New("invalid digital id")
	// ErrDuplicate is returned when the user already holds an ID or the
	// generated identifier is taken.
	ErrDuplicate = errors.New("digital id already exists")
)

// Status of a digital ID.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusRevoked   Status = "revoked"
)

// Level is how far the holder's identity has been verified.
type Level string

const (
	LevelBasic    Level = "basic"
	LevelVerified Level = "verified"
	LevelPremium  Level = "premium"
)

// DigitalID is a digital_ids row.
type DigitalID struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	TSSID             string     `json:"tssId"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	Status            Status     `json:"status"`
	VerificationLevel Level      `json:"verificationLevel"`
	LastVerification  *time.Time `json:"lastVerification,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// StatusAt derives the effective status. Expiry wins over the stored status.
func (d *DigitalID) StatusAt(now time.Time) Status {
	if d.ExpiresAt.Before(now) {
		return StatusExpired
	}
	switch d.Status {
	case StatusSuspended, StatusRevoked, StatusExpired:
		return d.Status
	}
	return StatusActive
}

var tssPattern = regexp.MustCompile(`^TSS-\d{4}-[A-Z0-9]{6}$`)

// Valid reports whether id has the TSS-YYYY-XXXXXX shape.
func Valid(id string) bool {
	return tssPattern.MatchString(id)
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTSSID returns a fresh identifier for the year of now. The suffix is
// drawn from the bytes of a random UUID.
func NewTSSID(now time.Time) string {
	raw := uuid.New()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = idAlphabet[int(raw[i])%len(idAlphabet)]
	}
	return "TSS-" + now.Format("2006") + "-" + string(suffix)
}

// ExpiryFor returns the last second of the year after issue.
func ExpiryFor(issued time.Time) time.Time {
	issued = issued.UTC()
	return time.Date(issued.Year()+1, time.December, 31, 23, 59, 59, 0, time.UTC)
}

// Badge is the display label of a verification level.
func Badge(level Level) string {
	switch level {
	case LevelPremium:
		return "Premium Verified"
	case LevelVerified:
		return "Verified"
	case LevelBasic:
		return "Basic"
	default:
		return "Unverified"
	}
}
