// Package dashboard aggregates the home screen statistics of a user and
// keeps them live.
package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/internal/alerts"
	"github.com/dexxeth/tourist-safety-shield/internal/location"
	"github.com/dexxeth/tourist-safety-shield/internal/places"
	"github.com/dexxeth/tourist-safety-shield/internal/profile"
	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Aggregation parameters.
const (
	NearbyLimit      = places.DefaultNearbyLimit
	HelpRadiusKm     = places.DefaultHelpRadiusKm
	DestinationCount = 3
	AlertWindow      = alerts.DashboardWindow
)

// Score sources.
const (
	ScoreStored    = "stored"
	ScoreLast      = "last"
	ScoreHeuristic = "heuristic"
)

// Stats is the dashboard payload.
type Stats struct {
	City                  string    `json:"city,omitempty"`
	HasLocation           bool      `json:"hasLocation"`
	ActiveAlerts          int       `json:"activeAlerts"`
	SafeRoutes            int       `json:"safeRoutes"`
	SafeRouteDestinations []string  `json:"safeRouteDestinations"`
	NearbyHelp            int       `json:"nearbyHelp"`
	SafetyScore           int       `json:"safetyScore"`
	ScoreSource           string    `json:"scoreSource"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// HeuristicScore estimates a safety score when none is stored.
func HeuristicScore(alertCount, safeRoutes, nearbyHelp int, hasLocation bool) int {
	score := 85
	if alertCount > 0 {
		score -= 10
	}
	if alertCount > 2 {
		score -= 5
	}
	if safeRoutes > 3 {
		score += 3
	}
	if nearbyHelp > 3 {
		score += 4
	}
	if !hasLocation {
		score -= 5
	}
	return profile.ClampScore(score)
}

// LocationSource provides and streams the latest location.
type LocationSource interface {
	Latest(ctx context.Context, userID string) (location.Latest, bool)
	Watch(ctx context.Context, userID string) <-chan location.Latest
}

// AlertSource counts and streams active alerts.
type AlertSource interface {
	ActiveCount(ctx context.Context, city string, window time.Duration) (int, error)
	Watch(ctx context.Context, city string, window time.Duration) <-chan int
}

// PlaceFinder ranks catalog entities.
type PlaceFinder interface {
	Nearby(ctx context.Context, origin *geo.Coordinate, city string, limit int) []places.NearbyEntity
	HelpPoints(ctx context.Context, origin *geo.Coordinate, city string, radiusKm float64) []places.NearbyEntity
}

// ScoreSource reads and streams the stored safety score.
type ScoreSource interface {
	Get(ctx context.Context, userID string) (int, bool, error)
	Last(userID string) (int, bool)
	Watch(ctx context.Context, userID string) <-chan int
}

// Config configures an Aggregator.
type Config struct {
	Locations LocationSource
	Alerts    AlertSource
	Places    PlaceFinder
	Scores    ScoreSource
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Aggregator computes dashboard Stats.
type Aggregator struct {
	locations LocationSource
	alerts    AlertSource
	places    PlaceFinder
	scores    ScoreSource
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		locations: cfg.Locations,
		alerts:    cfg.Alerts,
		places:    cfg.Places,
		scores:    cfg.Scores,
		logger:    cfg.Logger.With().Str("component", "dashboard").Logger(),
		now:       cfg.Now,
	}
}

// Stats computes the dashboard of userID. Collaborator failures degrade the
// affected figure to zero.
func (a *Aggregator) Stats(ctx context.Context, userID string) Stats {
	latest, ok := a.locations.Latest(ctx, userID)
	return a.compute(ctx, userID, latest, ok)
}

func (a *Aggregator) compute(ctx context.Context, userID string, latest location.Latest, hasLocation bool) Stats {
	st := Stats{
		HasLocation:           hasLocation,
		SafeRouteDestinations: []string{},
		UpdatedAt:             a.now(),
	}

	var origin *geo.Coordinate
	if hasLocation {
		st.City = latest.Label()
		c := latest.Coordinate
		origin = &c
	}

	n, err := a.alerts.ActiveCount(ctx, st.City, AlertWindow)
	if err != nil {
		a.logger.Warn().Err(err).Str("city", st.City).Msg("failed to count alerts")
	}
	st.ActiveAlerts = n

	nearby := a.places.Nearby(ctx, origin, st.City, NearbyLimit)
	st.SafeRoutes = len(nearby)
	for i := 0; i < len(nearby) && i < DestinationCount; i++ {
		st.SafeRouteDestinations = append(st.SafeRouteDestinations, nearby[i].Name)
	}

	if origin != nil {
		st.NearbyHelp = len(a.places.HelpPoints(ctx, origin, st.City, HelpRadiusKm))
	}

	score, found, err := a.scores.Get(ctx, userID)
	switch {
	case err == nil && found:
		st.SafetyScore, st.ScoreSource = score, ScoreStored
	default:
		if err != nil {
			a.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read safety score")
		}
		if last, ok := a.scores.Last(userID); ok {
			st.SafetyScore, st.ScoreSource = last, ScoreLast
		} else {
			st.SafetyScore = HeuristicScore(st.ActiveAlerts, st.SafeRoutes, st.NearbyHelp, hasLocation)
			st.ScoreSource = ScoreHeuristic
		}
	}
	return st
}

// Watch emits Stats now and again whenever the location, the alerts of the
// current city or the safety score change. Updates overwrite each other;
// a slow reader only sees the newest Stats. The alert watch follows the
// city of the latest location.
func (a *Aggregator) Watch(ctx context.Context, userID string) <-chan Stats {
	out := make(chan Stats, 1)

	locCh := a.locations.Watch(ctx, userID)
	scoreCh := a.scores.Watch(ctx, userID)

	go func() {
		defer close(out)

		latest, hasLocation := a.locations.Latest(ctx, userID)
		city := ""
		if hasLocation {
			city = latest.Label()
		}

		alertCtx, stopAlerts := context.WithCancel(ctx)
		alertCh := a.alerts.Watch(alertCtx, city, AlertWindow)
		defer func() { stopAlerts() }()

		emit := func() {
			st := a.compute(ctx, userID, latest, hasLocation)
			if ctx.Err() != nil {
				return
			}
			select {
			case <-out:
			default:
			}
			out <- st
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case l, ok := <-locCh:
				if !ok {
					locCh = nil
					continue
				}
				latest, hasLocation = l, true
				if label := l.Label(); label != city {
					city = label
					stopAlerts()
					alertCtx, stopAlerts = context.WithCancel(ctx)
					alertCh = a.alerts.Watch(alertCtx, city, AlertWindow)
				}
				emit()
			case _, ok := <-alertCh:
				if !ok {
					alertCh = nil
					continue
				}
				emit()
			case _, ok := <-scoreCh:
				if !ok {
					scoreCh = nil
					continue
				}
				emit()
			}
		}
	}()

	return out
}
