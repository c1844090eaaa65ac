// Package raster turns sparse prediction samples into cell grids and continuous rasters
// aligned to a field boundary.
package raster

import (
	"fmt"
	"math"

	"github.com/sells-group/fieldmap/internal/geo"
)

// SampleSet is the prediction response: parallel arrays of sample positions and values.
type SampleSet struct {
	Lon            []float64      `json:"lon"`
	Lat            []float64      `json:"lat"`
	Pred           []float64      `json:"pred"`
	CellSizeMeters float64        `json:"cell_size_m,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// MalformedSampleSetError reports a sample set that cannot be rendered.
type MalformedSampleSetError struct {
	LonLen  int
	LatLen  int
	PredLen int
	Reason  string
}

func (e *MalformedSampleSetError) Error() string {
	return fmt.Sprintf("raster: malformed sample set (lon=%d lat=%d pred=%d): %s",
		e.LonLen, e.LatLen, e.PredLen, e.Reason)
}

func (s *SampleSet) malformed(reason string) *MalformedSampleSetError {
	return &MalformedSampleSetError{
		LonLen:  len(s.Lon),
		LatLen:  len(s.Lat),
		PredLen: len(s.Pred),
		Reason:  reason,
	}
}

// Len returns the number of samples. It is only meaningful after Validate succeeds.
func (s *SampleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Pred)
}

// Validate checks that the three arrays have equal length and hold finite values.
// An empty set is valid here; renderers reject it with RequireSamples.
func (s *SampleSet) Validate() error {
	if s == nil {
		return &MalformedSampleSetError{Reason: "missing sample set"}
	}
	if len(s.Lon) != len(s.Lat) || len(s.Lat) != len(s.Pred) {
		return s.malformed("array lengths differ")
	}
	for i := range s.Pred {
		if !finite(s.Lon[i]) || !finite(s.Lat[i]) || !finite(s.Pred[i]) {
			return s.malformed(fmt.Sprintf("non-finite value at index %d", i))
		}
		if err := (geo.LonLatPoint{Lon: s.Lon[i], Lat: s.Lat[i]}).Validate(); err != nil {
			return s.malformed(fmt.Sprintf("index %d: %v", i, err))
		}
	}
	if s.CellSizeMeters < 0 || !finite(s.CellSizeMeters) {
		return s.malformed("negative cell_size_m")
	}
	return nil
}

// RequireSamples validates s and additionally rejects an empty set.
func (s *SampleSet) RequireSamples() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(s.Pred) == 0 {
		return s.malformed("no samples")
	}
	return nil
}

// Point returns the i-th sample position.
func (s *SampleSet) Point(i int) geo.LonLatPoint {
	return geo.LonLatPoint{Lon: s.Lon[i], Lat: s.Lat[i]}
}

// Bounds returns the bounding box of the sample positions.
func (s *SampleSet) Bounds() geo.Bounds {
	return geo.BoundsOfArrays(s.Lon, s.Lat)
}

// CellSize returns the response cell size, or def when the response carried none.
func (s *SampleSet) CellSize(def float64) float64 {
	if s != nil && s.CellSizeMeters > 0 {
		return s.CellSizeMeters
	}
	return def
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
