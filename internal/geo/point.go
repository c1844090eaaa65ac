// Package geo provides field boundary capture and small-area geometry on WGS84 coordinates.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// MetersPerDegree is the local equirectangular scale used for areas, cell sizes and distances.
// Longitude degrees are additionally scaled by cos(latitude).
const MetersPerDegree = 111320.0

// LonLatPoint is a WGS84 coordinate in degrees.
type LonLatPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// LatLng builds a point from map-click order (lat, lng).
func LatLng(lat, lng float64) LonLatPoint {
	return LonLatPoint{Lon: lng, Lat: lat}
}

// Validate checks the coordinate ranges.
func (p LonLatPoint) Validate() error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return eris.New("geo: coordinate is NaN")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("geo: longitude %v out of range [-180,180]", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("geo: latitude %v out of range [-90,90]", p.Lat)
	}
	return nil
}

// MetersPerDegreeLon returns the length of one degree of longitude at lat.
func MetersPerDegreeLon(lat float64) float64 {
	return MetersPerDegree * math.Cos(lat*math.Pi/180)
}

// Bounds is a lon/lat bounding box.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// BoundsOf returns the bounding box of the given points. The zero Bounds is returned for
// an empty slice.
func BoundsOf(points []LonLatPoint) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	lons := make([]float64, len(points))
	lats := make([]float64, len(points))
	for i, p := range points {
		lons[i] = p.Lon
		lats[i] = p.Lat
	}
	return BoundsOfArrays(lons, lats)
}

// BoundsOfArrays returns the bounding box of parallel lon/lat slices of equal, non-zero length.
func BoundsOfArrays(lons, lats []float64) Bounds {
	if len(lons) == 0 || len(lats) == 0 {
		return Bounds{}
	}
	return Bounds{
		West:  floats.Min(lons),
		South: floats.Min(lats),
		East:  floats.Max(lons),
		North: floats.Max(lats),
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() LonLatPoint {
	return LonLatPoint{Lon: (b.West + b.East) / 2, Lat: (b.South + b.North) / 2}
}

// Contains reports whether p lies inside or on the edge of the box.
func (b Bounds) Contains(p LonLatPoint) bool {
	return p.Lon >= b.West && p.Lon <= b.East && p.Lat >= b.South && p.Lat <= b.North
}

// IsEmpty reports whether the box has no area.
func (b Bounds) IsEmpty() bool {
	return b.East <= b.West || b.North <= b.South
}

// SizeMeters returns the width and height of the box in local meters.
func (b Bounds) SizeMeters() (width, height float64) {
	lat := (b.South + b.North) / 2
	return (b.East - b.West) * MetersPerDegreeLon(lat), (b.North - b.South) * MetersPerDegree
}

// Around returns a box of halfMeters in every direction from p.
func Around(p LonLatPoint, halfMeters float64) Bounds {
	dLat := halfMeters / MetersPerDegree
	dLon := halfMeters / MetersPerDegreeLon(p.Lat)
	return Bounds{
		West:  p.Lon - dLon,
		South: p.Lat - dLat,
		East:  p.Lon + dLon,
		North: p.Lat + dLat,
	}
}

// Ring returns the box as a closed counter-clockwise ring.
func (b Bounds) Ring() Ring {
	return Ring{
		{Lon: b.West, Lat: b.South},
		{Lon: b.East, Lat: b.South},
		{Lon: b.East, Lat: b.North},
		{Lon: b.West, Lat: b.North},
		{Lon: b.West, Lat: b.South},
	}
}
