package routing

import (
	"math"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
	"github.com/dexxeth/tourist-safety-shield/pkg/polyline"
)

const (
	baseScore          = 90.0
	minScore           = 50
	maxScore           = 100
	alertPenaltyPer    = 8.0
	maxAlertPenalty    = 20.0
	freeDistanceKm     = 3.0
	maxDistancePenalty = 10.0
	minFallbackMinutes = 4
	mainRoadsAboveKm   = 5.0
	maxPolylinePoints  = 500
)

// Highlight texts.
const (
	HighlightAvoidHotspots = "Avoid hotspot areas"
	HighlightMainRoads     = "Prefer main roads"
	HighlightLocalStreets  = "Local streets ok"
)

type variantSpec struct {
	id        Variant
	speedKmh  float64
	extra     float64
	highlight string
}

var variants = [MaxAlternatives]variantSpec{
	{id: VariantFastest, speedKmh: 35, extra: -2, highlight: "Traffic visibility"},
	{id: VariantBalanced, speedKmh: 28, extra: 0, highlight: "Well-lit segments"},
	{id: VariantSafest, speedKmh: 22, extra: 4, highlight: "Main roads priority"},
}

// ScoreInput is everything the scorer needs.
type ScoreInput struct {
	Origin       geo.Coordinate
	Destination  geo.Coordinate
	ActiveAlerts int
	// Alternatives from the routing engine, index 0 being the primary route. May be empty.
	Alternatives []Alternative
}

// AlertPenalty is min(20, alerts*8).
func AlertPenalty(activeAlerts int) float64 {
	if activeAlerts <= 0 {
		return 0
	}
	return math.Min(maxAlertPenalty, float64(activeAlerts)*alertPenaltyPer)
}

// DistancePenalty charges one point per km past the first 3 km, capped at 10.
func DistancePenalty(primaryKm float64) float64 {
	return clamp(primaryKm-freeDistanceKm, 0, maxDistancePenalty)
}

// RawSafetyScore combines the penalties with a variant bonus, saturating at
// [50,100], before rounding.
func RawSafetyScore(alertPenalty, distancePenalty, extra float64) float64 {
	raw := baseScore - alertPenalty - distancePenalty + extra
	if math.IsNaN(raw) {
		return minScore
	}
	return clamp(raw, minScore, maxScore)
}

// SafetyScore is RawSafetyScore rounded to the reported integer.
func SafetyScore(alertPenalty, distancePenalty, extra float64) int {
	return int(math.Round(RawSafetyScore(alertPenalty, distancePenalty, extra)))
}

// RiskFor maps an unrounded score to its risk bucket, so 79.6 is still
// medium even though it is reported as 80.
func RiskFor(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskLow
	case score >= 65:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// FallbackDurationMinutes estimates travel time at a fixed speed, never below 4 minutes.
func FallbackDurationMinutes(distanceKm, speedKmh float64) int {
	minutes := int(math.Round(distanceKm / speedKmh * 60))
	if minutes < minFallbackMinutes {
		return minFallbackMinutes
	}
	return minutes
}

// Score produces the fastest, balanced and safest options. Each variant reads
// the engine alternative with the same index and falls back to the
// straight-line distance at the variant's assumed speed.
func Score(in ScoreInput) []RouteOption {
	baseDistance := geo.DistanceKm(in.Origin, in.Destination)

	primaryKm := baseDistance
	if len(in.Alternatives) > 0 {
		primaryKm = in.Alternatives[0].DistanceKm
	}

	alertPenalty := AlertPenalty(in.ActiveAlerts)
	distancePenalty := DistancePenalty(primaryKm)

	var tips []string
	if in.ActiveAlerts > 0 {
		tips = append(tips, HighlightAvoidHotspots)
	}
	if primaryKm > mainRoadsAboveKm {
		tips = append(tips, HighlightMainRoads)
	} else {
		tips = append(tips, HighlightLocalStreets)
	}

	options := make([]RouteOption, 0, len(variants))
	for i, v := range variants {
		opt := RouteOption{ID: v.id}

		if i < len(in.Alternatives) {
			alt := in.Alternatives[i]
			opt.DistanceKm = alt.DistanceKm
			opt.DurationMinutes = alt.DurationMinutes
			if len(alt.Geometry) > 1 {
				opt.Polyline = polyline.Encode(polyline.Thin(alt.Geometry, maxPolylinePoints))
			}
		} else {
			opt.DistanceKm = baseDistance
			opt.DurationMinutes = FallbackDurationMinutes(baseDistance, v.speedKmh)
			opt.Estimated = true
		}
		opt.DistanceKm = math.Round(opt.DistanceKm*10) / 10

		raw := RawSafetyScore(alertPenalty, distancePenalty, v.extra)
		opt.SafetyScore = int(math.Round(raw))
		opt.RiskLevel = RiskFor(raw)

		opt.Highlights = make([]string, 0, len(tips)+1)
		opt.Highlights = append(opt.Highlights, tips...)
		opt.Highlights = append(opt.Highlights, v.highlight)

		options = append(options, opt)
	}
	return options
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
