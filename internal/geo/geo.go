// Package geo provides coordinate validation and district classification
// for Singapore properties. District codes ("D01".."D28") are derived from
// postal-district boundary polygons when a source supplies coordinates but
// no district.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Singapore bounding box. Coordinates outside it are treated as extraction
// noise and rejected.
const (
	minLat = 1.13
	maxLat = 1.48
	minLng = 103.59
	maxLng = 104.10
)

const earthRadiusM = 6371000.0

// ValidPoint reports whether a lat/lng pair falls inside Singapore.
func ValidPoint(lat, lng float64) bool {
	return lat >= minLat && lat <= maxLat && lng >= minLng && lng <= maxLng
}

// DistanceM returns the haversine distance in meters between two points.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// WithinMeters reports whether two points are within m meters of each other.
func WithinMeters(lat1, lng1, lat2, lng2, m float64) bool {
	return DistanceM(lat1, lng1, lat2, lng2) <= m
}

// CoordsFromField extracts a lat/lng pair from an extracted field value.
// Accepts {"lat": .., "lng": ..} maps and [lat, lng] lists.
func CoordsFromField(v any) (lat, lng float64, ok bool) {
	switch val := v.(type) {
	case map[string]any:
		la, laOK := toFloat(val["lat"])
		ln, lnOK := toFloat(val["lng"])
		if !lnOK {
			ln, lnOK = toFloat(val["lon"])
		}
		if laOK && lnOK {
			return la, ln, true
		}
	case []any:
		if len(val) == 2 {
			la, laOK := toFloat(val[0])
			ln, lnOK := toFloat(val[1])
			if laOK && lnOK {
				return la, ln, true
			}
		}
	}
	return 0, 0, false
}

// coordToPoint builds a go-geom coordinate in XY (lng, lat) order.
func coordToPoint(lat, lng float64) geom.Coord {
	return geom.Coord{lng, lat}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
