// Package profile reads and streams the per-user safety score kept on the
// profiles table.
package profile

import (
	"errors"
	"time"
)

// ErrProfileNotFound is returned when a user has no profile row.
var ErrProfileNotFound = errors.New("profile not found")

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Profile is the subset of a profiles row the core reads. The JSON names
// match the table columns so change events decode directly.
type Profile struct {
	UserID          string    `json:"user_id"`
	SafetyScore     *int      `json:"safety_score"`
	LocationSharing bool      `json:"location_sharing"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
