package places

import (
	"sort"
	"strings"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// StaticHelpPoints is the curated help-point list used when the catalog has
// no emergency-relevant entries nearby.
var StaticHelpPoints = []HelpPoint{
	{Name: "Colaba Police Station", Kind: HelpPolice, Coordinate: geo.Coordinate{Lat: 18.9085, Lng: 72.8147}, City: "Mumbai"},
	{Name: "Fort Police Station", Kind: HelpPolice, Coordinate: geo.Coordinate{Lat: 18.9323, Lng: 72.8331}, City: "Mumbai"},
	{Name: "Bombay Hospital", Kind: HelpHospital, Coordinate: geo.Coordinate{Lat: 18.9440, Lng: 72.8276}, City: "Mumbai"},
	{Name: "Breach Candy Hospital", Kind: HelpHospital, Coordinate: geo.Coordinate{Lat: 18.9727, Lng: 72.8063}, City: "Mumbai"},
	{Name: "US Consulate Mumbai", Kind: HelpEmbassy, Coordinate: geo.Coordinate{Lat: 19.0657, Lng: 72.8681}, City: "Mumbai"},
	{Name: "Maharashtra Tourism Office", Kind: HelpTourist, Coordinate: geo.Coordinate{Lat: 18.9256, Lng: 72.8322}, City: "Mumbai"},
	{Name: "Connaught Place Police Station", Kind: HelpPolice, Coordinate: geo.Coordinate{Lat: 28.6315, Lng: 77.2167}, City: "Delhi"},
	{Name: "Ram Manohar Lohia Hospital", Kind: HelpHospital, Coordinate: geo.Coordinate{Lat: 28.6266, Lng: 77.2054}, City: "Delhi"},
	{Name: "AIIMS New Delhi", Kind: HelpHospital, Coordinate: geo.Coordinate{Lat: 28.5669, Lng: 77.2090}, City: "Delhi"},
	{Name: "US Embassy New Delhi", Kind: HelpEmbassy, Coordinate: geo.Coordinate{Lat: 28.5983, Lng: 77.1819}, City: "Delhi"},
	{Name: "India Tourism Delhi", Kind: HelpTourist, Coordinate: geo.Coordinate{Lat: 28.6304, Lng: 77.2177}, City: "Delhi"},
	{Name: "Panaji Police Station", Kind: HelpPolice, Coordinate: geo.Coordinate{Lat: 15.4989, Lng: 73.8278}, City: "Panaji"},
	{Name: "Goa Medical College", Kind: HelpHospital, Coordinate: geo.Coordinate{Lat: 15.4889, Lng: 73.8203}, City: "Panaji"},
}

// NearestStatic returns curated help points within radiusKm of origin,
// nearest first. Points in a different city are skipped when city is set.
func NearestStatic(origin geo.Coordinate, city string, radiusKm float64) []RankedHelpPoint {
	if radiusKm <= 0 {
		radiusKm = DefaultHelpRadiusKm
	}
	var out []RankedHelpPoint
	for _, p := range StaticHelpPoints {
		if city != "" && p.City != "" && !strings.EqualFold(p.City, city) {
			continue
		}
		d := geo.DistanceKm(origin, p.Coordinate)
		if d <= radiusKm {
			out = append(out, RankedHelpPoint{HelpPoint: p, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Popular is the curated sightseeing list.
var Popular = []PopularPlace{
	{Name: "Gateway of India", City: "Mumbai", Coordinate: geo.Coordinate{Lat: 18.9220, Lng: 72.8347}},
	{Name: "Marine Drive", City: "Mumbai", Coordinate: geo.Coordinate{Lat: 18.9432, Lng: 72.8238}},
	{Name: "Colaba Causeway", City: "Mumbai", Coordinate: geo.Coordinate{Lat: 18.9225, Lng: 72.8326}},
	{Name: "Chhatrapati Shivaji Terminus", City: "Mumbai", Coordinate: geo.Coordinate{Lat: 18.9402, Lng: 72.8356}},
	{Name: "Elephanta Caves", City: "Mumbai", Coordinate: geo.Coordinate{Lat: 18.9633, Lng: 72.9316}},
	{Name: "India Gate", City: "New Delhi", Coordinate: geo.Coordinate{Lat: 28.6129, Lng: 77.2295}},
	{Name: "Qutub Minar", City: "New Delhi", Coordinate: geo.Coordinate{Lat: 28.5245, Lng: 77.1855}},
	{Name: "Taj Mahal", City: "Agra", Coordinate: geo.Coordinate{Lat: 27.1751, Lng: 78.0421}},
}

// PopularPlaces returns up to limit curated places. A city narrows the list
// by substring match unless nothing matches. With an origin the result is
// sorted by distance.
func PopularPlaces(origin *geo.Coordinate, city string, limit int) []PopularPlace {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}
	candidates := Popular
	if city != "" {
		needle := strings.ToLower(city)
		var matches []PopularPlace
		for _, p := range Popular {
			if strings.Contains(strings.ToLower(p.City), needle) {
				matches = append(matches, p)
			}
		}
		if len(matches) > 0 {
			candidates = matches
		}
	}

	out := append([]PopularPlace(nil), candidates...)
	if origin != nil {
		o := *origin
		sort.SliceStable(out, func(i, j int) bool {
			return geo.DistanceKm(o, out[i].Coordinate) < geo.DistanceKm(o, out[j].Coordinate)
		})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
