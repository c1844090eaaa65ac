package raster

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/fieldmap/internal/geo"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	// pointTolerance is the half-size in meters of the rectangle stored per sample.
	pointTolerance = 1e-6
)

// projection maps lon/lat to local equirectangular meters around an origin.
type projection struct {
	lon0, lat0 float64
	kx, ky     float64
}

func newProjection(origin geo.LonLatPoint) projection {
	return projection{
		lon0: origin.Lon,
		lat0: origin.Lat,
		kx:   geo.MetersPerDegreeLon(origin.Lat),
		ky:   geo.MetersPerDegree,
	}
}

func (p projection) xy(q geo.LonLatPoint) (x, y float64) {
	return (q.Lon - p.lon0) * p.kx, (q.Lat - p.lat0) * p.ky
}

// indexedSample wraps a sample for R-tree indexing.
type indexedSample struct {
	idx   int
	x, y  float64
	value float64
	rect  rtreego.Rect
}

func (s *indexedSample) Bounds() rtreego.Rect {
	return s.rect
}

// sampleIndex is a read-only R-tree over samples in local meters. Safe for concurrent queries.
type sampleIndex struct {
	tree *rtreego.Rtree
	proj projection
	size int
}

func newSampleIndex(s *SampleSet) *sampleIndex {
	proj := newProjection(s.Bounds().Center())
	items := make([]rtreego.Spatial, s.Len())
	for i := range items {
		x, y := proj.xy(s.Point(i))
		items[i] = &indexedSample{
			idx:   i,
			x:     x,
			y:     y,
			value: s.Pred[i],
			rect:  rtreego.Point{x, y}.ToRect(pointTolerance),
		}
	}
	return &sampleIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren, items...),
		proj: proj,
		size: len(items),
	}
}

// within returns the samples whose box intersects the square of radius r around (x, y).
func (ix *sampleIndex) within(x, y, r float64) []rtreego.Spatial {
	bb, err := rtreego.NewRectFromPoints(rtreego.Point{x - r, y - r}, rtreego.Point{x + r, y + r})
	if err != nil {
		return nil
	}
	return ix.tree.SearchIntersect(bb)
}

// nearest returns the k samples nearest to (x, y) regardless of distance.
func (ix *sampleIndex) nearest(x, y float64, k int) []rtreego.Spatial {
	return ix.tree.NearestNeighbors(k, rtreego.Point{x, y})
}

func dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}
