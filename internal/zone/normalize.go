// Package zone normalizes prediction values and classifies them into management zones.
package zone

import (
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
)

// Percentile bounds used by Normalize.
const (
	LowQuantile  = 0.05
	HighQuantile = 0.95
)

// Percentile returns the q-quantile of values with linear interpolation between the two
// nearest ranks at position (n-1)·q of the sorted copy. Empty input returns 0.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, q)
}

func percentileSorted(sorted []float64, q float64) float64 {
	q = math.Max(0, math.Min(1, q))
	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// DegenerateRangeWarning reports that the percentile range collapsed (hi == lo), so every
// value maps to the same end of the scale. It is not fatal.
type DegenerateRangeWarning struct {
	Lo, Hi float64
	N      int
}

func (w *DegenerateRangeWarning) Error() string {
	return fmt.Sprintf("zone: degenerate value range lo=%g hi=%g over %d values", w.Lo, w.Hi, w.N)
}

// Scale maps raw values to [0, 1].
type Scale struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
	// Gamma applies t^Gamma after clamping. Values ≤ 0 or 1 leave t unchanged.
	Gamma float64 `json:"gamma,omitempty"`
	// Invert flips the scale (t = 1 - t) before gamma.
	Invert bool `json:"invert,omitempty"`
}

// T returns the normalized value of v. The denominator falls back to 1 when Hi == Lo.
func (s Scale) T(v float64) float64 {
	den := s.Hi - s.Lo
	if den == 0 {
		den = 1
	}
	t := clamp01((v - s.Lo) / den)
	if s.Invert {
		t = 1 - t
	}
	if s.Gamma > 0 && s.Gamma != 1 {
		t = math.Pow(t, s.Gamma)
	}
	return t
}

// Degenerate reports whether the range collapsed.
func (s Scale) Degenerate() bool {
	return s.Hi == s.Lo
}

// Options tune Normalize.
type Options struct {
	Gamma  float64 `mapstructure:"gamma" json:"gamma,omitempty"`
	Invert bool    `mapstructure:"invert" json:"invert,omitempty"`
}

// Result is the outcome of Normalize.
type Result struct {
	T     []float64
	Scale Scale
	// Warning is set when the range is degenerate.
	Warning *DegenerateRangeWarning
}

// NewScale derives the 5th-95th percentile scale of values.
func NewScale(values []float64, opts Options) Scale {
	s := Scale{Gamma: opts.Gamma, Invert: opts.Invert}
	if len(values) == 0 {
		return s
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	s.Lo = percentileSorted(sorted, LowQuantile)
	s.Hi = percentileSorted(sorted, HighQuantile)
	return s
}

// Normalize maps every value to t = clamp01((v-lo)/(hi-lo)) using the 5th and 95th
// percentiles. Output order matches input order.
func Normalize(values []float64, opts Options) Result {
	s := NewScale(values, opts)
	res := Result{T: make([]float64, len(values)), Scale: s}
	if len(values) == 0 {
		return res
	}
	for i, v := range values {
		res.T[i] = s.T(v)
	}
	if s.Degenerate() {
		res.Warning = &DegenerateRangeWarning{Lo: s.Lo, Hi: s.Hi, N: len(values)}
		zap.L().Warn("zone: degenerate value range",
			zap.Float64("lo", s.Lo),
			zap.Float64("hi", s.Hi),
			zap.Int("values", len(values)))
	}
	return res
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
