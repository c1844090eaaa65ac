package overlay

import (
	"context"
	"image/color"

	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/zone"
)

// DefaultPadding is the FitBounds padding in pixels.
const DefaultPadding = 40

// Zoning is the classified cell grid of one sample set.
type Zoning struct {
	Cells   []raster.Cell
	T       []float64
	Classes []zone.Class
	Scale   zone.Scale
	Stats   []zone.Stat
	Warning *zone.DegenerateRangeWarning
}

// ZoneCells builds the cell grid, normalizes the values and classifies every cell.
// A malformed or empty sample set fails before anything is computed.
func ZoneCells(s *raster.SampleSet, defaultCellSize float64, th zone.Thresholds, opts zone.Options) (*Zoning, error) {
	cells, err := raster.CellGrid(s, defaultCellSize)
	if err != nil {
		return nil, err
	}
	norm := zone.Normalize(raster.Values(cells), opts)
	classes := th.ClassifyAll(norm.T)
	return &Zoning{
		Cells:   cells,
		T:       norm.T,
		Classes: classes,
		Scale:   norm.Scale,
		Stats:   zone.Summarize(classes),
		Warning: norm.Warning,
	}, nil
}

// ContinuousColorizer colours raw values along the channel ramp.
func ContinuousColorizer(scale zone.Scale, ch Channel) raster.ColorFunc {
	return func(v float64) color.NRGBA {
		st := StyleForContinuous(scale.T(v), ch)
		return st.FillColor.NRGBA(st.FillOpacity)
	}
}

// ZoneColorizer colours raw values by their zone class.
func ZoneColorizer(scale zone.Scale, th zone.Thresholds) raster.ColorFunc {
	return func(v float64) color.NRGBA {
		st := StyleFor(th.Classify(scale.T(v)))
		return st.FillColor.NRGBA(st.FillOpacity)
	}
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithThresholds sets the classification table.
func WithThresholds(th zone.Thresholds) RendererOption {
	return func(r *Renderer) {
		r.thresholds = th
	}
}

// WithNormalize sets the normalization options.
func WithNormalize(opts zone.Options) RendererOption {
	return func(r *Renderer) {
		r.norm = opts
	}
}

// WithChannel sets the continuous palette of raster overlays.
func WithChannel(ch Channel) RendererOption {
	return func(r *Renderer) {
		r.channel = ch
	}
}

// WithZonedRaster colours raster pixels by zone class instead of the continuous ramp.
func WithZonedRaster() RendererOption {
	return func(r *Renderer) {
		r.zonedRaster = true
	}
}

// WithPadding sets the FitBounds padding.
func WithPadding(px int) RendererOption {
	return func(r *Renderer) {
		r.padding = px
	}
}

// Renderer draws boundaries, cell grids and rasters onto a MapSurface.
// Every draw validates its input before touching the surface, so a failed draw leaves the
// previous overlay in place.
type Renderer struct {
	surface     MapSurface
	thresholds  zone.Thresholds
	norm        zone.Options
	channel     Channel
	zonedRaster bool
	padding     int
}

// NewRenderer returns a renderer over surface.
func NewRenderer(surface MapSurface, opts ...RendererOption) *Renderer {
	r := &Renderer{
		surface:    surface,
		thresholds: zone.DefaultThresholds,
		channel:    Vegetation,
		padding:    DefaultPadding,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thresholds returns the classification table in use.
func (r *Renderer) Thresholds() zone.Thresholds {
	return r.thresholds
}

// DrawBoundary outlines the field and frames it.
func (r *Renderer) DrawBoundary(ring geo.Ring) error {
	closed := ring.Close()
	if err := closed.ValidateClosed(); err != nil {
		return err
	}
	r.surface.Clear(LayerBoundary)
	r.surface.InvalidateSize()
	r.surface.FitBounds(closed.Bounds(), r.padding)
	r.surface.DrawPolygon(Polygon{Layer: LayerBoundary, Ring: closed, Style: BoundaryStyle()})
	return nil
}

// RenderCells replaces the cell layer with one styled rectangle per sample.
func (r *Renderer) RenderCells(s *raster.SampleSet, defaultCellSize float64) (*Zoning, error) {
	z, err := ZoneCells(s, defaultCellSize, r.thresholds, r.norm)
	if err != nil {
		return nil, err
	}

	r.surface.Clear(LayerCells)
	for i, c := range z.Cells {
		r.surface.DrawPolygon(Polygon{
			Layer: LayerCells,
			Ring:  c.Bounds.Ring(),
			Style: StyleFor(z.Classes[i]),
			Properties: map[string]any{
				"index": c.Index,
				"value": c.Value,
				"t":     z.T[i],
				"class": z.Classes[i].String(),
			},
		})
	}

	zap.L().Debug("overlay: cells rendered",
		zap.Int("cells", len(z.Cells)),
		zap.Float64("lo", z.Scale.Lo),
		zap.Float64("hi", z.Scale.Hi))
	return z, nil
}

// Colorizer returns the colour function used for rasters of s.
func (r *Renderer) Colorizer(s *raster.SampleSet) raster.ColorFunc {
	scale := zone.NewScale(s.Pred, r.norm)
	if r.zonedRaster {
		return ZoneColorizer(scale, r.thresholds)
	}
	return ContinuousColorizer(scale, r.channel)
}

// RenderRaster interpolates s over the boundary and replaces the raster layer.
func (r *Renderer) RenderRaster(ctx context.Context, s *raster.SampleSet, ring geo.Ring, opts raster.RenderOptions) (*raster.Canvas, error) {
	if err := s.RequireSamples(); err != nil {
		return nil, err
	}
	opts.Colorize = r.Colorizer(s)
	canvas, err := raster.Render(ctx, s, ring, opts)
	if err != nil {
		return nil, err
	}
	r.ShowCanvas(canvas)
	return canvas, nil
}

// ShowCanvas replaces the raster layer with a finished canvas.
func (r *Renderer) ShowCanvas(canvas *raster.Canvas) {
	r.surface.Clear(LayerRaster)
	r.surface.DrawImage(ImageOverlay{Layer: LayerRaster, Canvas: canvas, Opacity: 1})
}
