package raster

import (
	"math"

	"github.com/sells-group/fieldmap/internal/geo"
)

// IDW defaults.
const (
	DefaultNeighbors = 24
	DefaultPower     = 2.0
	// Epsilon is the distance in meters under which a sample's value is returned exactly.
	Epsilon = 1e-12
	// MinCutoff is the lower bound of the derived search cutoff in meters.
	MinCutoff = 50.0
	// cutoffCells is the derived cutoff expressed in cell sizes.
	cutoffCells = 3.0
)

// IDWOptions tune the inverse-distance-weighting interpolator. Zero values select defaults.
type IDWOptions struct {
	// K is the number of nearest samples considered per query.
	K int `mapstructure:"neighbors" json:"neighbors,omitempty"`
	// Power is the distance exponent of the weights.
	Power float64 `mapstructure:"power" json:"power,omitempty"`
	// Cutoff is the search radius in meters. Zero derives max(3 × cell size, 50 m);
	// a negative value disables the cutoff.
	Cutoff float64 `mapstructure:"cutoff_m" json:"cutoff_m,omitempty"`
	// CellSize overrides the cell size used to derive the cutoff.
	CellSize float64 `mapstructure:"cell_size_m" json:"cell_size_m,omitempty"`
}

func (o IDWOptions) withDefaults(s *SampleSet) IDWOptions {
	if o.K <= 0 {
		o.K = DefaultNeighbors
	}
	if o.Power <= 0 {
		o.Power = DefaultPower
	}
	if o.CellSize <= 0 {
		o.CellSize = s.CellSize(DefaultCellSize)
	}
	if o.Cutoff == 0 {
		o.Cutoff = math.Max(cutoffCells*o.CellSize, MinCutoff)
	}
	return o
}

// Interpolator estimates values between samples by inverse distance weighting.
// It is immutable after construction and safe for concurrent use.
type Interpolator struct {
	opts  IDWOptions
	index *sampleIndex
}

// NewInterpolator indexes s. The sample set must be valid and non-empty.
func NewInterpolator(s *SampleSet, opts IDWOptions) (*Interpolator, error) {
	if err := s.RequireSamples(); err != nil {
		return nil, err
	}
	return &Interpolator{
		opts:  opts.withDefaults(s),
		index: newSampleIndex(s),
	}, nil
}

// Options returns the effective options.
func (ip *Interpolator) Options() IDWOptions {
	return ip.opts
}

// neighbor is one entry of the bounded best-k buffer.
type neighbor struct {
	d   float64
	v   float64
	idx int
}

// bestK keeps the k nearest candidates sorted by distance, ties broken by sample index.
type bestK struct {
	k   int
	buf []neighbor
}

func (b *bestK) reset(k int) {
	b.k = k
	b.buf = b.buf[:0]
}

func (b *bestK) offer(n neighbor) {
	if len(b.buf) == b.k && !n.less(b.buf[len(b.buf)-1]) {
		return
	}
	if len(b.buf) < b.k {
		b.buf = append(b.buf, n)
	} else {
		b.buf[len(b.buf)-1] = n
	}
	for i := len(b.buf) - 1; i > 0 && b.buf[i].less(b.buf[i-1]); i-- {
		b.buf[i], b.buf[i-1] = b.buf[i-1], b.buf[i]
	}
}

func (n neighbor) less(o neighbor) bool {
	if n.d != o.d {
		return n.d < o.d
	}
	return n.idx < o.idx
}

// Interpolate returns the estimate at q. ok is false when no sample lies within the cutoff.
func (ip *Interpolator) Interpolate(q geo.LonLatPoint) (float64, bool) {
	var b bestK
	return ip.interpolate(q, &b)
}

// interpolate reuses b between calls from the same goroutine.
func (ip *Interpolator) interpolate(q geo.LonLatPoint, b *bestK) (float64, bool) {
	x, y := ip.index.proj.xy(q)
	b.reset(ip.opts.K)

	if ip.opts.Cutoff < 0 {
		for _, c := range ip.index.nearest(x, y, ip.opts.K) {
			s := c.(*indexedSample)
			b.offer(neighbor{d: dist(x, y, s.x, s.y), v: s.value, idx: s.idx})
		}
	} else {
		for _, c := range ip.index.within(x, y, ip.opts.Cutoff) {
			s := c.(*indexedSample)
			d := dist(x, y, s.x, s.y)
			if d > ip.opts.Cutoff {
				continue
			}
			b.offer(neighbor{d: d, v: s.value, idx: s.idx})
		}
	}

	if len(b.buf) == 0 {
		return 0, false
	}
	if b.buf[0].d < Epsilon {
		return b.buf[0].v, true
	}

	var num, den float64
	for _, n := range b.buf {
		w := 1 / math.Pow(n.d, ip.opts.Power)
		num += w * n.v
		den += w
	}
	if den == 0 || math.IsInf(den, 0) {
		return b.buf[0].v, true
	}
	return num / den, true
}
