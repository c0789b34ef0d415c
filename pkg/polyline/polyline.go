// Package polyline encodes route geometries using Google's encoded polyline
// algorithm (https://developers.google.com/maps/documentation/utilities/polylinealgorithm).
//
// Route options returned by the API carry their geometry in this format so a
// full OSRM geometry fits in a single short string.
package polyline

import (
	"math"

	"github.com/dexxeth/tourist-safety-shield/pkg/geo"
)

// Precision5 is the standard Google precision; Precision6 is used by OSRM's polyline6.
const (
	Precision5 = 5
	Precision6 = 6
)

// Encode encodes points with 5 decimal places of precision.
func Encode(points []geo.Coordinate) string {
	return EncodePrecision(points, Precision5)
}

// Decode decodes a string produced by Encode.
func Decode(encoded string) []geo.Coordinate {
	return DecodePrecision(encoded, Precision5)
}

// EncodePrecision encodes points using the given number of decimal places.
func EncodePrecision(points []geo.Coordinate, precision int) string {
	if len(points) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	out := make([]byte, 0, len(points)*6)
	var prevLat, prevLng int

	for _, p := range points {
		lat := int(math.Round(p.Lat * factor))
		lng := int(math.Round(p.Lng * factor))
		out = appendValue(out, lat-prevLat)
		out = appendValue(out, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return string(out)
}

// DecodePrecision decodes a polyline encoded with the given number of decimal places.
// A truncated trailing pair is ignored.
func DecodePrecision(encoded string, precision int) []geo.Coordinate {
	if encoded == "" {
		return nil
	}

	factor := math.Pow10(precision)
	var points []geo.Coordinate
	var lat, lng int
	i := 0

	for i < len(encoded) {
		dLat, next, ok := readValue(encoded, i)
		if !ok {
			break
		}
		dLng, next, ok := readValue(encoded, next)
		if !ok {
			break
		}
		i = next
		lat += dLat
		lng += dLng
		points = append(points, geo.Coordinate{Lat: float64(lat) / factor, Lng: float64(lng) / factor})
	}
	return points
}

func appendValue(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte((u&0x1f)|0x20)+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

func readValue(s string, i int) (int, int, bool) {
	var result, shift int
	for i < len(s) {
		b := int(s[i]) - 63
		i++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), i, true
			}
			return result >> 1, i, true
		}
	}
	return 0, i, false
}

// Thin reduces points to at most max entries by keeping evenly spaced points.
// The first and last points are always kept.
func Thin(points []geo.Coordinate, max int) []geo.Coordinate {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return []geo.Coordinate{points[0]}
	}

	out := make([]geo.Coordinate, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for k := 0; k < max; k++ {
		out = append(out, points[int(math.Round(float64(k)*step))])
	}
	return out
}
