package places

import (
	"context"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

var helpKeywords = regexp.MustCompile(`(?i)police|hospital|clinic|embassy`)

// IsHelpPoint reports whether any safety feature names an emergency service.
func IsHelpPoint(features []string) bool {
	for _, f := range features {
		if helpKeywords.MatchString(f) {
			return true
		}
	}
	return false
}

// Finder ranks catalog entities. Catalog read failures yield empty results.
type Finder struct {
	repo   Repository
	logger zerolog.Logger
}

// NewFinder creates a Finder.
func NewFinder(repo Repository, logger zerolog.Logger) *Finder {
	return &Finder{repo: repo, logger: logger.With().Str("component", "places").Logger()}
}

// Nearby returns up to limit entities with coordinates. Without an origin
// they keep storage order; otherwise they are sorted by ascending distance.
func (f *Finder) Nearby(ctx context.Context, origin *geo.Coordinate, city string, limit int) []NearbyEntity {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	items, ok := f.list(ctx, city)
	if !ok {
		return []NearbyEntity{}
	}

	out := rank(items, origin, nil)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HelpPoints returns entities whose safety features name police, hospital,
// clinic or embassy. With an origin only those within radiusKm are kept,
// nearest first.
func (f *Finder) HelpPoints(ctx context.Context, origin *geo.Coordinate, city string, radiusKm float64) []NearbyEntity {
	if radiusKm <= 0 {
		radiusKm = DefaultHelpRadiusKm
	}
	items, ok := f.list(ctx, city)
	if !ok {
		return []NearbyEntity{}
	}

	var helps []*Accommodation
	for _, a := range items {
		if IsHelpPoint(a.SafetyFeatures) {
			helps = append(helps, a)
		}
	}
	return rank(helps, origin, &radiusKm)
}

func (f *Finder) list(ctx context.Context, city string) ([]*Accommodation, bool) {
	items, err := f.repo.List(ctx, city)
	if err != nil {
		f.logger.Warn().Err(err).Str("city", city).Msg("accommodation catalog unavailable")
		return nil, false
	}
	return items, true
}

func rank(items []*Accommodation, origin *geo.Coordinate, radiusKm *float64) []NearbyEntity {
	out := make([]NearbyEntity, 0, len(items))
	for _, a := range items {
		if a.Coordinate == nil {
			continue
		}
		e := NearbyEntity{
			ID:             a.ID,
			Name:           a.Name,
			Coordinate:     *a.Coordinate,
			Address:        a.Address,
			City:           a.City,
			SafetyFeatures: a.SafetyFeatures,
		}
		if origin != nil {
			d := geo.DistanceKm(*origin, *a.Coordinate)
			if radiusKm != nil && d > *radiusKm {
				continue
			}
			e.DistanceKm = &d
		}
		out = append(out, e)
	}
	if origin != nil {
		sort.SliceStable(out, func(i, j int) bool { return *out[i].DistanceKm < *out[j].DistanceKm })
	}
	return out
}
