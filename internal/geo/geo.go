package geo

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point carries plausible coordinates. Trees
// imported from field surveys occasionally have missing or zeroed
// positions; callers skip those instead of alerting on them.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the great-circle distance between two points in km.
// Haversine is accurate enough at forest scale; no ellipsoid correction.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Match pairs a candidate index with its distance from the query point.
type Match struct {
	Index      int
	Point      Point
	DistanceKm float64
}

// NearestWithin returns the candidates within radiusKm of p, ascending by
// distance. Candidates with invalid coordinates are skipped. Pure, no I/O.
func NearestWithin(p Point, candidates []Point, radiusKm float64) []Match {
	matches := make([]Match, 0)
	for i, c := range candidates {
		if !c.Valid() {
			continue
		}
		d := Distance(p, c)
		if d <= radiusKm {
			matches = append(matches, Match{Index: i, Point: c, DistanceKm: d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches
}
