package routing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// kmNorth returns a point distanceKm due north of c.
func kmNorth(c geo.Coordinate, distanceKm float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + distanceKm/(geo.EarthRadiusKm*math.Pi/180), Lng: c.Lng}
}

var origin = geo.Coordinate{Lat: 28.6139, Lng: 77.2090}

func TestAlertPenalty(t *testing.T) {
	cases := map[int]float64{0: 0, 1: 8, 2: 16, 3: 20, 10: 20, -1: 0}
	for alerts, expected := range cases {
		assert.Equal(t, expected, AlertPenalty(alerts), "alerts=%d", alerts)
	}
}

func TestDistancePenalty(t *testing.T) {
	assert.Equal(t, 0.0, DistancePenalty(0))
	assert.Equal(t, 0.0, DistancePenalty(3))
	assert.InDelta(t, 2.5, DistancePenalty(5.5), 1e-9)
	assert.Equal(t, 10.0, DistancePenalty(13))
	assert.Equal(t, 10.0, DistancePenalty(500))
}

func TestRiskFor_Boundaries(t *testing.T) {
	assert.Equal(t, RiskLow, RiskFor(80))
	assert.Equal(t, RiskMedium, RiskFor(79))
	assert.Equal(t, RiskMedium, RiskFor(79.99))
	assert.Equal(t, RiskMedium, RiskFor(65))
	assert.Equal(t, RiskHigh, RiskFor(64))
	assert.Equal(t, RiskLow, RiskFor(100))
	assert.Equal(t, RiskHigh, RiskFor(50))
}

func TestFallbackDurationMinutes(t *testing.T) {
	assert.Equal(t, 5, FallbackDurationMinutes(2, 22))
	assert.Equal(t, 4, FallbackDurationMinutes(2, 35))
	assert.Equal(t, 4, FallbackDurationMinutes(0, 28))
	assert.Equal(t, 21, FallbackDurationMinutes(10, 28))
}

func TestScore_NoEngineDataTwoKilometres(t *testing.T) {
	options := Score(ScoreInput{
		Origin:      origin,
		Destination: kmNorth(origin, 2),
	})
	require.Len(t, options, 3)

	fastest, balanced, safest := options[0], options[1], options[2]
	assert.Equal(t, VariantFastest, fastest.ID)
	assert.Equal(t, VariantBalanced, balanced.ID)
	assert.Equal(t, VariantSafest, safest.ID)

	assert.Equal(t, 5, safest.DurationMinutes)
	assert.Equal(t, 4, fastest.DurationMinutes)
	assert.Equal(t, 4, balanced.DurationMinutes)

	assert.Equal(t, 88, fastest.SafetyScore)
	assert.Equal(t, 90, balanced.SafetyScore)
	assert.Equal(t, 94, safest.SafetyScore)

	for _, o := range options {
		assert.InDelta(t, 2.0, o.DistanceKm, 1e-9)
		assert.Equal(t, RiskLow, o.RiskLevel)
		assert.True(t, o.Estimated)
		assert.Empty(t, o.Polyline)
		assert.Equal(t, HighlightLocalStreets, o.Highlights[0])
	}
	assert.Equal(t, []string{HighlightLocalStreets, "Traffic visibility"}, fastest.Highlights)
	assert.Equal(t, []string{HighlightLocalStreets, "Well-lit segments"}, balanced.Highlights)
	assert.Equal(t, []string{HighlightLocalStreets, "Main roads priority"}, safest.Highlights)
}

func TestScore_SameOriginAndDestination(t *testing.T) {
	options := Score(ScoreInput{Origin: origin, Destination: origin})
	require.Len(t, options, 3)
	for _, o := range options {
		assert.Equal(t, 0.0, o.DistanceKm)
		assert.Equal(t, 4, o.DurationMinutes)
	}
	assert.Equal(t, 90, options[1].SafetyScore)
}

func TestScore_UsesEngineAlternativesByIndex(t *testing.T) {
	dest := kmNorth(origin, 8)
	options := Score(ScoreInput{
		Origin:       origin,
		Destination:  dest,
		ActiveAlerts: 3,
		Alternatives: []Alternative{
			{DistanceKm: 10.04, DurationMinutes: 22, Geometry: []geo.Coordinate{origin, dest}},
			{DistanceKm: 11.26, DurationMinutes: 25},
		},
	})
	require.Len(t, options, 3)

	// primary distance 10.04 km: distance penalty 7.04, alert penalty 20
	assert.Equal(t, 61, options[0].SafetyScore)
	assert.Equal(t, 63, options[1].SafetyScore)
	assert.Equal(t, 67, options[2].SafetyScore)
	assert.Equal(t, RiskHigh, options[0].RiskLevel)
	assert.Equal(t, RiskHigh, options[1].RiskLevel)
	assert.Equal(t, RiskMedium, options[2].RiskLevel)

	assert.Equal(t, 22, options[0].DurationMinutes)
	assert.InDelta(t, 10.0, options[0].DistanceKm, 1e-9)
	assert.NotEmpty(t, options[0].Polyline)
	assert.False(t, options[0].Estimated)

	assert.Equal(t, 25, options[1].DurationMinutes)
	assert.InDelta(t, 11.3, options[1].DistanceKm, 1e-9)

	// third variant falls back to the straight line at 22 km/h
	assert.True(t, options[2].Estimated)
	assert.InDelta(t, 8.0, options[2].DistanceKm, 1e-9)
	assert.Equal(t, 22, options[2].DurationMinutes)

	assert.Equal(t, []string{HighlightAvoidHotspots, HighlightMainRoads, "Traffic visibility"}, options[0].Highlights)
}

func TestScore_AlertPenaltySaturates(t *testing.T) {
	dest := kmNorth(origin, 1)
	three := Score(ScoreInput{Origin: origin, Destination: dest, ActiveAlerts: 3})
	many := Score(ScoreInput{Origin: origin, Destination: dest, ActiveAlerts: 500})
	for i := range three {
		assert.Equal(t, three[i].SafetyScore, many[i].SafetyScore)
	}
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		dest := geo.Coordinate{Lat: r.Float64()*180 - 90, Lng: r.Float64()*360 - 180}
		in := ScoreInput{
			Origin:       origin,
			Destination:  dest,
			ActiveAlerts: r.Intn(1000),
		}
		if r.Intn(2) == 0 {
			in.Alternatives = []Alternative{{DistanceKm: r.Float64() * 5000, DurationMinutes: r.Intn(10000)}}
		}
		for _, o := range Score(in) {
			assert.GreaterOrEqual(t, o.SafetyScore, 50)
			assert.LessOrEqual(t, o.SafetyScore, 100)
		}
	}
}

func TestSafetyScore_Clamps(t *testing.T) {
	assert.Equal(t, 100, SafetyScore(0, 0, 50))
	assert.Equal(t, 50, SafetyScore(20, 10, -100))
	assert.Equal(t, 50, SafetyScore(math.NaN(), 0, 0))
}

func TestScore_RiskFromUnroundedScore(t *testing.T) {
	options := Score(ScoreInput{
		Origin:       origin,
		Destination:  kmNorth(origin, 5),
		ActiveAlerts: 1,
		Alternatives: []Alternative{{DistanceKm: 5.4, DurationMinutes: 12}},
	})
	require.Len(t, options, 3)

	// 90 - 8 - 2.4 = 79.6: reported as 80 but still medium risk
	balanced := options[1]
	assert.Equal(t, 80, balanced.SafetyScore)
	assert.Equal(t, RiskMedium, balanced.RiskLevel)
	assert.InDelta(t, 79.6, RawSafetyScore(AlertPenalty(1), DistancePenalty(5.4), 0), 1e-9)

	assert.Equal(t, 84, options[2].SafetyScore)
	assert.Equal(t, RiskLow, options[2].RiskLevel)
}
