package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrRingNotClosed is returned when a ring that must be closed is not.
var ErrRingNotClosed = eris.New("geo: ring is not closed")

// Ring is an ordered sequence of points describing a polygon boundary.
type Ring []LonLatPoint

// IsClosed reports whether the first and last points are identical.
func (r Ring) IsClosed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

// Close returns a copy of the ring with the first point appended when it is not already closed.
func (r Ring) Close() Ring {
	out := make(Ring, len(r), len(r)+1)
	copy(out, r)
	if len(r) > 0 && !r.IsClosed() {
		out = append(out, r[0])
	}
	return out
}

// Open returns the ring without its closing point.
func (r Ring) Open() Ring {
	if r.IsClosed() {
		return r[:len(r)-1]
	}
	return r
}

// Reverse returns the ring in the opposite winding order.
func (r Ring) Reverse() Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// Bounds returns the bounding box of the ring.
func (r Ring) Bounds() Bounds {
	return BoundsOf(r)
}

// ValidateClosed checks that the ring is closed, has at least three distinct vertices and
// only valid coordinates.
func (r Ring) ValidateClosed() error {
	if !r.IsClosed() {
		return ErrRingNotClosed
	}
	if n := len(r.Open()); n < 3 {
		return &InsufficientPointsError{Have: n}
	}
	for i, p := range r {
		if err := p.Validate(); err != nil {
			return eris.Wrapf(err, "geo: ring point %d", i)
		}
	}
	return nil
}

// LonLatPairs returns the ring as [lon, lat] pairs, the order used on the wire.
func (r Ring) LonLatPairs() [][]float64 {
	out := make([][]float64, len(r))
	for i, p := range r {
		out[i] = []float64{p.Lon, p.Lat}
	}
	return out
}

// LatLngPairs returns the ring as [lat, lng] pairs, the order used by map widgets.
func (r Ring) LatLngPairs() [][]float64 {
	out := make([][]float64, len(r))
	for i, p := range r {
		out[i] = []float64{p.Lat, p.Lon}
	}
	return out
}

// Contains reports whether p lies inside the ring (even-odd rule).
func (r Ring) Contains(p LonLatPoint) bool {
	pts := r.Open()
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := pts[i].Lon, pts[i].Lat
		xj, yj := pts[j].Lon, pts[j].Lat
		if (yi > p.Lat) != (yj > p.Lat) && p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Polygon converts the ring to a closed go-geom polygon in lon/lat (XY) order with SRID 4326.
func (r Ring) Polygon() (*geom.Polygon, error) {
	closed := r.Close()
	coords := make([]geom.Coord, len(closed))
	for i, p := range closed {
		coords[i] = geom.Coord{p.Lon, p.Lat}
	}
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, eris.Wrap(err, "geo: build polygon")
	}
	return poly.SetSRID(4326), nil
}

// RingFromLonLatPairs parses [lon, lat] pairs.
func RingFromLonLatPairs(pairs [][]float64) (Ring, error) {
	r := make(Ring, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, eris.Errorf("geo: coords[%d] must be [lon, lat]", i)
		}
		r[i] = LonLatPoint{Lon: pair[0], Lat: pair[1]}
		if err := r[i].Validate(); err != nil {
			return nil, eris.Wrapf(err, "geo: coords[%d]", i)
		}
	}
	return r, nil
}

// RingFromLatLngPairs parses [lat, lng] pairs as produced by map clicks.
func RingFromLatLngPairs(pairs [][]float64) (Ring, error) {
	r := make(Ring, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, eris.Errorf("geo: points[%d] must be [lat, lng]", i)
		}
		r[i] = LatLng(pair[0], pair[1])
		if err := r[i].Validate(); err != nil {
			return nil, eris.Wrapf(err, "geo: points[%d]", i)
		}
	}
	return r, nil
}
