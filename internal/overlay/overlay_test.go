package overlay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/zone"
)

// recordingSurface logs every call for assertions.
type recordingSurface struct {
	calls    []string
	polygons []Polygon
	images   []ImageOverlay
}

func (s *recordingSurface) InvalidateSize()           { s.calls = append(s.calls, "invalidate") }
func (s *recordingSurface) FitBounds(geo.Bounds, int) { s.calls = append(s.calls, "fit") }
func (s *recordingSurface) Clear(l Layer)             { s.calls = append(s.calls, "clear:"+string(l)) }

func (s *recordingSurface) DrawImage(img ImageOverlay) {
	s.calls = append(s.calls, "image")
	s.images = append(s.images, img)
}

func (s *recordingSurface) DrawPolygon(p Polygon) {
	s.calls = append(s.calls, "polygon:"+string(p.Layer))
	s.polygons = append(s.polygons, p)
}

func field() geo.Ring {
	return geo.Ring{
		geo.LatLng(55.0, 37.0),
		geo.LatLng(55.0, 37.01),
		geo.LatLng(55.01, 37.01),
		geo.LatLng(55.01, 37.0),
	}
}

func fieldSamples() *raster.SampleSet {
	return &raster.SampleSet{
		Lon:  []float64{37.002, 37.008, 37.002, 37.008},
		Lat:  []float64{55.002, 55.002, 55.008, 55.008},
		Pred: []float64{10, 20, 80, 95},
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		class zone.Class
		fill  string
		alpha float64
	}{
		{zone.OK, "rgba(34, 197, 94, 0.10)", 0.10},
		{zone.Observe, "rgba(250, 204, 21, 0.18)", 0.18},
		{zone.Treat, "rgba(249, 115, 22, 0.24)", 0.24},
		{zone.Urgent, "rgba(239, 68, 68, 0.32)", 0.32},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			st := StyleFor(tt.class)
			assert.Equal(t, tt.fill, st.FillColor.CSS(st.FillOpacity))
			assert.Equal(t, tt.alpha, st.FillOpacity)
			assert.Equal(t, tt.class == zone.Urgent, st.Stroke)
			assert.Equal(t, st, StyleFor(tt.class))
		})
	}

	urgent := StyleFor(zone.Urgent)
	assert.Equal(t, "rgba(220, 38, 38, 0.60)", urgent.StrokeColor.CSS(urgent.StrokeOpacity))
	assert.Equal(t, 1.2, urgent.StrokeWeight)
}

func TestBoundaryStyle(t *testing.T) {
	st := BoundaryStyle()
	assert.Equal(t, "#66d771", st.StrokeColor.Hex())
	assert.Equal(t, 3.0, st.StrokeWeight)
	assert.Equal(t, 0.85, st.StrokeOpacity)
	assert.Equal(t, 0.08, st.FillOpacity)
}

func TestStyleForContinuous(t *testing.T) {
	low := StyleForContinuous(0, Vegetation)
	assert.Equal(t, okFill, low.FillColor)
	assert.InDelta(t, 0.05, low.FillOpacity, 1e-12)

	mid := StyleForContinuous(0.5, Vegetation)
	assert.Equal(t, observeFill, mid.FillColor)

	high := StyleForContinuous(1, Vegetation)
	assert.Equal(t, urgentFill, high.FillColor)
	assert.InDelta(t, 0.65, high.FillOpacity, 1e-12)

	assert.Equal(t, "#90ee90", StyleForContinuous(0, Fertilizer).FillColor.Hex())
	assert.Equal(t, "#ff6b6b", StyleForContinuous(1, Fertilizer).FillColor.Hex())
	assert.Equal(t, "#ff6b6b", StyleForContinuous(7, Fertilizer).FillColor.Hex())

	assert.Equal(t, StyleForContinuous(0.3, Vegetation), StyleForContinuous(0.3, Channel("ndvi")))
	assert.Equal(t, low, StyleForContinuous(-1, Vegetation))

	for _, ch := range []Channel{Vegetation, Fertilizer} {
		prev := -1.0
		for i := 0; i <= 100; i++ {
			st := StyleForContinuous(float64(i)/100, ch)
			assert.Greater(t, st.FillOpacity, prev)
			prev = st.FillOpacity
		}
	}
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, Vegetation, ch)

	ch, err = ParseChannel("fertilizer")
	require.NoError(t, err)
	assert.Equal(t, Fertilizer, ch)

	_, err = ParseChannel("thermal")
	assert.Error(t, err)
}

func TestColorizers(t *testing.T) {
	scale := zone.Scale{Lo: 0, Hi: 100}

	c := ContinuousColorizer(scale, Vegetation)(0)
	assert.Equal(t, uint8(34), c.R)
	assert.Equal(t, uint8(13), c.A)

	z := ZoneColorizer(scale, zone.DefaultThresholds)(95)
	assert.Equal(t, uint8(239), z.R)
	assert.Equal(t, uint8(82), z.A)
}

func TestZoneCells(t *testing.T) {
	z, err := ZoneCells(fieldSamples(), 10, zone.DefaultThresholds, zone.Options{})
	require.NoError(t, err)
	assert.Equal(t, []zone.Class{zone.OK, zone.OK, zone.Treat, zone.Urgent}, z.Classes)
	assert.InDelta(t, 11.5, z.Scale.Lo, 1e-9)
	assert.InDelta(t, 92.75, z.Scale.Hi, 1e-9)
	assert.Equal(t, 2, z.Stats[0].Count)
	assert.Equal(t, 50.0, z.Stats[0].Percent)
	assert.Nil(t, z.Warning)
}

func TestRenderer_DrawBoundary(t *testing.T) {
	s := &recordingSurface{}
	r := NewRenderer(s)

	require.NoError(t, r.DrawBoundary(field()))
	assert.Equal(t, []string{"clear:boundary", "invalidate", "fit", "polygon:boundary"}, s.calls)
	assert.True(t, s.polygons[0].Ring.IsClosed())
	assert.Equal(t, BoundaryStyle(), s.polygons[0].Style)

	s.calls = nil
	err := r.DrawBoundary(field()[:2])
	var ipe *geo.InsufficientPointsError
	assert.ErrorAs(t, err, &ipe)
	assert.Empty(t, s.calls)
}

func TestRenderer_RenderCells(t *testing.T) {
	s := &recordingSurface{}
	r := NewRenderer(s)

	z, err := r.RenderCells(fieldSamples(), 10)
	require.NoError(t, err)
	require.Len(t, z.Cells, 4)
	assert.Equal(t, "clear:cells", s.calls[0])
	require.Len(t, s.polygons, 4)
	assert.Equal(t, StyleFor(zone.Urgent), s.polygons[3].Style)
	assert.Equal(t, "urgent", s.polygons[3].Properties["class"])
	assert.True(t, s.polygons[0].Ring.IsClosed())
}

func TestRenderer_MalformedKeepsPreviousOverlay(t *testing.T) {
	s := &recordingSurface{}
	r := NewRenderer(s)
	_, err := r.RenderCells(fieldSamples(), 10)
	require.NoError(t, err)
	before := len(s.calls)

	bad := &raster.SampleSet{
		Lon:  []float64{37.001, 37.002, 37.003, 37.004, 37.005},
		Lat:  []float64{55.001, 55.002, 55.003, 55.004, 55.005},
		Pred: []float64{1, 2, 3, 4},
	}
	_, err = r.RenderCells(bad, 10)
	var mse *raster.MalformedSampleSetError
	require.ErrorAs(t, err, &mse)

	_, err = r.RenderRaster(context.Background(), bad, field().Close(), raster.RenderOptions{Width: 8, Height: 8})
	require.ErrorAs(t, err, &mse)

	assert.Len(t, s.calls, before)
}

func TestRenderer_RenderRaster(t *testing.T) {
	s := &recordingSurface{}
	r := NewRenderer(s, WithChannel(Fertilizer))

	canvas, err := r.RenderRaster(context.Background(), fieldSamples(), field().Close(),
		raster.RenderOptions{Width: 32, Height: 32, IDW: raster.IDWOptions{Cutoff: -1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"clear:raster", "image"}, s.calls)
	assert.Same(t, canvas, s.images[0].Canvas)
	assert.Equal(t, 32*32, canvas.Opaque())

	again, err := r.RenderRaster(context.Background(), fieldSamples(), field().Close(),
		raster.RenderOptions{Width: 32, Height: 32, IDW: raster.IDWOptions{Cutoff: -1}})
	require.NoError(t, err)
	assert.Equal(t, canvas.Pix, again.Pix)

	zoned := NewRenderer(&recordingSurface{}, WithZonedRaster(), WithNormalize(zone.Options{Invert: true}))
	zc, err := zoned.RenderRaster(context.Background(), fieldSamples(), field().Close(),
		raster.RenderOptions{Width: 32, Height: 32, IDW: raster.IDWOptions{Cutoff: -1}})
	require.NoError(t, err)
	assert.NotEqual(t, canvas.Pix, zc.Pix)
}

func TestFeatureCollector(t *testing.T) {
	fc := NewFeatureCollector()
	r := NewRenderer(fc, WithPadding(12))

	require.NoError(t, r.DrawBoundary(field()))
	_, err := r.RenderCells(fieldSamples(), 10)
	require.NoError(t, err)
	_, err = r.RenderCells(fieldSamples(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, fc.Len(LayerBoundary))
	assert.Equal(t, 4, fc.Len(LayerCells))
	assert.Equal(t, 1, fc.Resizes())
	view, pad := fc.View()
	assert.Equal(t, field().Bounds(), view)
	assert.Equal(t, 12, pad)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string         `json:"id"`
			Geometry   map[string]any `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 5)
	assert.Equal(t, "boundary", doc.Features[0].Properties["layer"])
	assert.Equal(t, "Polygon", doc.Features[0].Geometry["type"])
	assert.Equal(t, "#ef4444", doc.Features[4].Properties["fill"])
	assert.Equal(t, "#dc2626", doc.Features[4].Properties["stroke"])
	assert.Equal(t, "urgent", doc.Features[4].Properties["class"])
	assert.NotContains(t, doc.Features[1].Properties, "stroke")

	canvas, err := raster.NewCanvas(4, 4, field().Bounds())
	require.NoError(t, err)
	r.ShowCanvas(canvas)
	assert.Len(t, fc.Images(), 1)
	assert.Equal(t, 1, fc.Len(LayerRaster))
	fc.Clear(LayerRaster)
	assert.Empty(t, fc.Images())
}
