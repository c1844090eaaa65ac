package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldmap/internal/geo"
)

const (
	originLon = 37.0
	originLat = 55.0
)

// gridSamples returns an n×n grid of samples spaced step meters apart, value = row*n+col.
func gridSamples(n int, step float64) *SampleSet {
	dLat := step / geo.MetersPerDegree
	dLon := step / geo.MetersPerDegreeLon(originLat)
	s := &SampleSet{}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			s.Lon = append(s.Lon, originLon+float64(c)*dLon)
			s.Lat = append(s.Lat, originLat+float64(r)*dLat)
			s.Pred = append(s.Pred, float64(r*n+c))
		}
	}
	return s
}

func gray(v float64) color.NRGBA {
	u := uint8(max(0, min(255, v*10)))
	return color.NRGBA{R: u, G: u, B: u, A: 255}
}

func TestSampleSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     *SampleSet
		wantErr bool
	}{
		{name: "valid", set: gridSamples(2, 10)},
		{name: "empty is valid", set: &SampleSet{}},
		{name: "nil", set: nil, wantErr: true},
		{
			name:    "mismatched lengths",
			set:     &SampleSet{Lon: []float64{1, 2, 3, 4, 5}, Lat: []float64{1, 2, 3, 4, 5}, Pred: []float64{1, 2, 3, 4}},
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			set:     &SampleSet{Lon: []float64{1}, Lat: []float64{91}, Pred: []float64{1}},
			wantErr: true,
		},
		{
			name:    "negative cell size",
			set:     &SampleSet{Lon: []float64{1}, Lat: []float64{1}, Pred: []float64{1}, CellSizeMeters: -4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var mse *MalformedSampleSetError
			assert.True(t, errors.As(err, &mse))
		})
	}
}

func TestSampleSet_MismatchReportsLengths(t *testing.T) {
	s := &SampleSet{Lon: make([]float64, 5), Lat: make([]float64, 5), Pred: make([]float64, 4)}
	var mse *MalformedSampleSetError
	require.ErrorAs(t, s.Validate(), &mse)
	assert.Equal(t, 5, mse.LonLen)
	assert.Equal(t, 5, mse.LatLen)
	assert.Equal(t, 4, mse.PredLen)
	assert.Contains(t, mse.Error(), "lon=5 lat=5 pred=4")
}

func TestCellGrid(t *testing.T) {
	s := &SampleSet{Lon: []float64{originLon, originLon + 0.001}, Lat: []float64{originLat, originLat}, Pred: []float64{0.3, 0.9}}

	cells, err := CellGrid(s, 0)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, 1, cells[1].Index)
	assert.Equal(t, 0.9, cells[1].Value)
	assert.Equal(t, []float64{0.3, 0.9}, Values(cells))

	w, h := cells[0].Bounds.SizeMeters()
	assert.InDelta(t, DefaultCellSize, h, 1e-6)
	assert.InDelta(t, DefaultCellSize, w, 1e-6)
	assert.True(t, cells[0].Bounds.Contains(cells[0].Center))
	assert.InDelta(t, originLat, cells[0].Bounds.Center().Lat, 1e-12)

	cells, err = CellGrid(s, 20)
	require.NoError(t, err)
	_, h = cells[0].Bounds.SizeMeters()
	assert.InDelta(t, 20, h, 1e-6)

	s.CellSizeMeters = 4
	cells, err = CellGrid(s, 20)
	require.NoError(t, err)
	_, h = cells[0].Bounds.SizeMeters()
	assert.InDelta(t, 4, h, 1e-6)
}

func TestCellGrid_RejectsEmptyAndMalformed(t *testing.T) {
	var mse *MalformedSampleSetError

	_, err := CellGrid(&SampleSet{}, 10)
	assert.ErrorAs(t, err, &mse)

	_, err = CellGrid(&SampleSet{Lon: []float64{1, 2}, Lat: []float64{1, 2}, Pred: []float64{1}}, 10)
	assert.ErrorAs(t, err, &mse)
}

func TestBestK(t *testing.T) {
	var b bestK
	b.reset(3)
	for i, d := range []float64{5, 1, 4, 2, 3, 1} {
		b.offer(neighbor{d: d, v: d, idx: i})
	}
	require.Len(t, b.buf, 3)
	assert.Equal(t, 1.0, b.buf[0].d)
	assert.Equal(t, 1, b.buf[0].idx)
	assert.Equal(t, 5, b.buf[1].idx)
	assert.Equal(t, 2.0, b.buf[2].d)
}

func TestInterpolate_ExactAtSample(t *testing.T) {
	s := gridSamples(5, 10)
	for _, k := range []int{1, 3, 24} {
		for _, power := range []float64{1, 2, 3.5} {
			t.Run(fmt.Sprintf("k=%d/power=%g", k, power), func(t *testing.T) {
				ip, err := NewInterpolator(s, IDWOptions{K: k, Power: power})
				require.NoError(t, err)

				for i := 0; i < s.Len(); i++ {
					v, ok := ip.Interpolate(s.Point(i))
					require.True(t, ok)
					assert.Equal(t, s.Pred[i], v)
				}
			})
		}
	}
}

func TestInterpolate_Midpoint(t *testing.T) {
	s := &SampleSet{
		Lon:  []float64{originLon, originLon + 0.0002},
		Lat:  []float64{originLat, originLat},
		Pred: []float64{10, 20},
	}
	ip, err := NewInterpolator(s, IDWOptions{})
	require.NoError(t, err)

	v, ok := ip.Interpolate(geo.LonLatPoint{Lon: originLon + 0.0001, Lat: originLat})
	require.True(t, ok)
	assert.InDelta(t, 15, v, 1e-9)
}

func TestInterpolate_WithinSampleRange(t *testing.T) {
	s := gridSamples(6, 12)
	ip, err := NewInterpolator(s, IDWOptions{})
	require.NoError(t, err)

	b := s.Bounds()
	for i := 0; i <= 10; i++ {
		for j := 0; j <= 10; j++ {
			q := geo.LonLatPoint{
				Lon: b.West + (b.East-b.West)*float64(i)/10,
				Lat: b.South + (b.North-b.South)*float64(j)/10,
			}
			v, ok := ip.Interpolate(q)
			require.True(t, ok)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 35.0)
		}
	}
}

func TestInterpolate_Cutoff(t *testing.T) {
	s := gridSamples(2, 10)
	far := geo.LonLatPoint{Lon: originLon, Lat: originLat + 1000/geo.MetersPerDegree}

	ip, err := NewInterpolator(s, IDWOptions{})
	require.NoError(t, err)
	assert.Equal(t, MinCutoff, ip.Options().Cutoff)
	_, ok := ip.Interpolate(far)
	assert.False(t, ok)

	s.CellSizeMeters = 40
	ip, err = NewInterpolator(s, IDWOptions{})
	require.NoError(t, err)
	assert.Equal(t, 120.0, ip.Options().Cutoff)

	unlimited, err := NewInterpolator(s, IDWOptions{Cutoff: -1})
	require.NoError(t, err)
	v, ok := unlimited.Interpolate(far)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 3.0)
}

func TestInterpolate_KLimitsNeighbors(t *testing.T) {
	s := &SampleSet{
		Lon:  []float64{originLon, originLon + 0.0001, originLon + 0.0002},
		Lat:  []float64{originLat, originLat, originLat},
		Pred: []float64{1, 100, 1000},
	}
	ip, err := NewInterpolator(s, IDWOptions{K: 1})
	require.NoError(t, err)

	v, ok := ip.Interpolate(geo.LonLatPoint{Lon: originLon + 0.00002, Lat: originLat})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestNewInterpolator_Empty(t *testing.T) {
	_, err := NewInterpolator(&SampleSet{}, IDWOptions{})
	var mse *MalformedSampleSetError
	assert.ErrorAs(t, err, &mse)
}

func fieldAround(s *SampleSet) geo.Ring {
	return s.Bounds().Ring()
}

func TestRender(t *testing.T) {
	s := gridSamples(5, 10)
	boundary := fieldAround(s)

	canvas, err := Render(context.Background(), s, boundary, RenderOptions{Width: 40, Height: 40, Colorize: gray})
	require.NoError(t, err)
	assert.Equal(t, 40, canvas.Width)
	assert.Equal(t, 40, canvas.Height)
	assert.Equal(t, boundary.Bounds(), canvas.Bounds)
	assert.Len(t, canvas.Pix, 40*40*4)
	assert.Equal(t, 40*40, canvas.Opaque())
}

func TestRender_ClipsToBoundary(t *testing.T) {
	s := gridSamples(5, 10)
	b := s.Bounds()
	triangle := geo.Ring{
		{Lon: b.West, Lat: b.South},
		{Lon: b.East, Lat: b.South},
		{Lon: b.West, Lat: b.North},
	}.Close()

	canvas, err := Render(context.Background(), s, triangle, RenderOptions{Width: 50, Height: 50, Colorize: gray})
	require.NoError(t, err)

	assert.Equal(t, uint8(0), canvas.At(49, 0).A)
	assert.Equal(t, uint8(255), canvas.At(0, 49).A)
	assert.Less(t, canvas.Opaque(), 50*50)
	assert.Greater(t, canvas.Opaque(), 50*50/3)

	unclipped, err := Render(context.Background(), s, triangle, RenderOptions{Width: 50, Height: 50, Colorize: gray, NoClip: true})
	require.NoError(t, err)
	assert.Equal(t, 50*50, unclipped.Opaque())
}

func TestRender_OutOfRangeStaysTransparent(t *testing.T) {
	s := &SampleSet{Lon: []float64{originLon}, Lat: []float64{originLat}, Pred: []float64{1}}
	big := geo.Around(geo.LonLatPoint{Lon: originLon, Lat: originLat}, 1000).Ring()

	canvas, err := Render(context.Background(), s, big, RenderOptions{Width: 100, Height: 100, Colorize: gray})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), canvas.At(0, 0).A)
	assert.Equal(t, uint8(255), canvas.At(50, 50).A)
	assert.Less(t, canvas.Opaque(), 100)
}

func TestRender_Deterministic(t *testing.T) {
	s := gridSamples(7, 9)
	opts := RenderOptions{MaxSide: 64, Colorize: gray}

	a, err := Render(context.Background(), s, fieldAround(s), opts)
	require.NoError(t, err)
	opts.Workers = 1
	b, err := Render(context.Background(), s, fieldAround(s), opts)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)

	var pa, pb bytes.Buffer
	require.NoError(t, a.EncodePNG(&pa))
	require.NoError(t, b.EncodePNG(&pb))
	assert.Equal(t, pa.Bytes(), pb.Bytes())

	img, err := png.Decode(&pa)
	require.NoError(t, err)
	assert.Equal(t, a.Width, img.Bounds().Dx())
}

func TestRender_Errors(t *testing.T) {
	s := gridSamples(3, 10)

	_, err := Render(context.Background(), s, nil, RenderOptions{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Render(ctx, s, fieldAround(s), RenderOptions{Width: 64, Height: 64, Colorize: gray})
	assert.ErrorIs(t, err, context.Canceled)

	bad := &SampleSet{Lon: []float64{1, 2}, Lat: []float64{1, 2}, Pred: []float64{1}}
	_, err = Render(context.Background(), bad, nil, RenderOptions{Colorize: gray})
	var mse *MalformedSampleSetError
	assert.ErrorAs(t, err, &mse)
}

func TestRender_NoBoundaryUsesSampleExtent(t *testing.T) {
	s := gridSamples(3, 10)
	canvas, err := Render(context.Background(), s, nil, RenderOptions{Colorize: gray})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSide, max(canvas.Width, canvas.Height))

	sb := s.Bounds()
	assert.Less(t, canvas.Bounds.West, sb.West)
	assert.Greater(t, canvas.Bounds.North, sb.North)
}

func TestCanvasSize(t *testing.T) {
	b := geo.Around(geo.LonLatPoint{Lon: originLon, Lat: originLat}, 100)
	wide := geo.Bounds{West: b.West, South: b.South, East: b.East + (b.East - b.West), North: b.North}

	w, h := canvasSize(wide, RenderOptions{MaxSide: 100})
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	w, h = canvasSize(wide, RenderOptions{Height: 30})
	assert.Equal(t, 60, w)
	assert.Equal(t, 30, h)

	w, h = canvasSize(b, RenderOptions{Width: 20, Height: 7})
	assert.Equal(t, 20, w)
	assert.Equal(t, 7, h)
}

func TestCanvas_PixelCenter(t *testing.T) {
	c, err := NewCanvas(2, 2, geo.Bounds{West: 0, South: 0, East: 2, North: 2})
	require.NoError(t, err)
	assert.Equal(t, geo.LonLatPoint{Lon: 0.5, Lat: 1.5}, c.PixelCenter(0, 0))
	assert.Equal(t, geo.LonLatPoint{Lon: 1.5, Lat: 0.5}, c.PixelCenter(1, 1))

	c.Set(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 4})
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 4}, c.At(1, 0))
	assert.Equal(t, 1, c.Opaque())

	_, err = NewCanvas(0, 2, c.Bounds)
	assert.Error(t, err)
	_, err = NewCanvas(2, 2, geo.Bounds{})
	assert.Error(t, err)
}
