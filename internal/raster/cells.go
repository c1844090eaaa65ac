package raster

import (
	"github.com/sells-group/fieldmap/internal/geo"
)

// DefaultCellSize is the cell edge in meters used when neither the caller nor the
// response provides one.
const DefaultCellSize = 10.0

// Cell is one axis-aligned grid rectangle centered on a sample.
type Cell struct {
	Index  int             `json:"index"`
	Center geo.LonLatPoint `json:"center"`
	Bounds geo.Bounds      `json:"bounds"`
	Value  float64         `json:"value"`
}

// CellGrid builds one cell per sample, cellSize × cellSize meters, centered on the sample.
// The response cell_size_m overrides defaultCellSize; a non-positive default falls back to
// DefaultCellSize. Output order matches input order.
func CellGrid(s *SampleSet, defaultCellSize float64) ([]Cell, error) {
	if err := s.RequireSamples(); err != nil {
		return nil, err
	}
	if defaultCellSize <= 0 {
		defaultCellSize = DefaultCellSize
	}
	half := s.CellSize(defaultCellSize) / 2

	cells := make([]Cell, s.Len())
	for i := range cells {
		c := s.Point(i)
		cells[i] = Cell{
			Index:  i,
			Center: c,
			Bounds: geo.Around(c, half),
			Value:  s.Pred[i],
		}
	}
	return cells, nil
}

// Values returns the cell values in order.
func Values(cells []Cell) []float64 {
	out := make([]float64, len(cells))
	for i, c := range cells {
		out[i] = c.Value
	}
	return out
}
