// Package geo filters located records by great-circle distance.
package geo

import (
	"math"
	"sort"
)

const (
	EarthRadiusKm = 6371.0

	// KmPerDegree is the length of one degree of latitude.
	KmPerDegree = 111.0

	// SamePointKm is the distance below which two points are the same place.
	SamePointKm = 1e-6
)

type Point struct {
	Lat float64
	Lon float64
}

// Located is anything carrying optional coordinates. A nil latitude or
// longitude means the record has no position.
type Located interface {
	Coordinates() (lat, lon *float64)
}

type Match[T Located] struct {
	Item       T
	DistanceKm float64
}

// Distance returns the haversine distance in kilometres between two points
// given in degrees.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Within returns the items lying within radiusKm of center, in input order.
// Items without coordinates are skipped.
func Within[T Located](center Point, radiusKm float64, items []T) []Match[T] {
	if radiusKm < 0 {
		return nil
	}
	matches := make([]Match[T], 0, len(items))
	for _, item := range items {
		lat, lon := item.Coordinates()
		if lat == nil || lon == nil {
			continue
		}
		d := Distance(center, Point{Lat: *lat, Lon: *lon})
		if d <= radiusKm || d < SamePointKm {
			matches = append(matches, Match[T]{Item: item, DistanceKm: d})
		}
	}
	return matches
}

// SortByDistance orders matches nearest first. Equal distances keep their
// relative order.
func SortByDistance[T Located](matches []Match[T]) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
}

// Box is a latitude/longitude rectangle used to narrow a query before the
// exact haversine check.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a box containing every point within radiusKm of center.
// Longitude is widened by 1/cos(lat) so that no true match falls outside.
func BoundingBox(center Point, radiusKm float64) Box {
	latDelta := radiusKm / KmPerDegree
	box := Box{
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
		MinLon: -180,
		MaxLon: 180,
	}

	// The widest parallel inside the box decides the longitude span.
	widest := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	cos := math.Cos(toRadians(widest))
	if cos < 1e-9 {
		return box
	}
	lonDelta := latDelta / cos
	// Boxes crossing the antimeridian fall back to the full longitude range.
	if center.Lon-lonDelta < -180 || center.Lon+lonDelta > 180 {
		return box
	}
	box.MinLon = center.Lon - lonDelta
	box.MaxLon = center.Lon + lonDelta
	return box
}

// Contains reports whether p lies in the box.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
