// Package session owns the state of one map view: the active boundary, the latest sample
// set and the overlays drawn from them.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/overlay"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

var (
	// ErrStale is returned when a newer request superseded this one. Its result was dropped.
	ErrStale = eris.New("session: superseded by a newer request")
	// ErrNoBoundary is returned when an operation needs a boundary and none is set.
	ErrNoBoundary = eris.New("session: no boundary")
	// ErrNoSamples is returned when an operation needs samples and none are loaded.
	ErrNoSamples = eris.New("session: no samples")
)

// Option configures a View.
type Option func(*View)

// WithParams sets the prediction parameters.
func WithParams(p prediction.Params) Option {
	return func(v *View) {
		v.params = p
	}
}

// WithCellSize sets the default cell size used when a response carries none.
func WithCellSize(m float64) Option {
	return func(v *View) {
		v.cellSize = m
	}
}

// WithRenderOptions sets the raster size, interpolation and worker options.
func WithRenderOptions(opts raster.RenderOptions) Option {
	return func(v *View) {
		v.renderOpts = opts
	}
}

// WithRendererOptions configures the overlay renderer.
func WithRendererOptions(opts ...overlay.RendererOption) Option {
	return func(v *View) {
		v.rendererOpts = append(v.rendererOpts, opts...)
	}
}

// View is one map view. Reads are lock-free snapshots; updates that touch the surface are
// serialized. Every prediction request gets a sequence number and only the newest may
// replace the samples.
type View struct {
	client       prediction.Client
	surface      overlay.MapSurface
	renderer     *overlay.Renderer
	rendererOpts []overlay.RendererOption
	params       prediction.Params
	cellSize     float64
	renderOpts   raster.RenderOptions

	boundary atomic.Pointer[geo.Ring]
	samples  atomic.Pointer[raster.SampleSet]
	zoning   atomic.Pointer[overlay.Zoning]
	canvas   atomic.Pointer[raster.Canvas]
	seq      atomic.Uint64

	mu            sync.Mutex // guards surface drawing and the cancel funcs
	cancelPredict context.CancelFunc
	cancelRender  context.CancelFunc
}

// NewView returns an empty view drawing onto surface.
func NewView(client prediction.Client, surface overlay.MapSurface, opts ...Option) *View {
	v := &View{
		client:   client,
		surface:  surface,
		params:   prediction.DefaultParams(),
		cellSize: raster.DefaultCellSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.renderer = overlay.NewRenderer(surface, v.rendererOpts...)
	return v
}

// Boundary returns the active boundary, or nil.
func (v *View) Boundary() geo.Ring {
	if r := v.boundary.Load(); r != nil {
		return *r
	}
	return nil
}

// Samples returns the current sample set, or nil.
func (v *View) Samples() *raster.SampleSet {
	return v.samples.Load()
}

// Zoning returns the classification of the current samples, or nil.
func (v *View) Zoning() *overlay.Zoning {
	return v.zoning.Load()
}

// Canvas returns the last finished raster, or nil.
func (v *View) Canvas() *raster.Canvas {
	return v.canvas.Load()
}

// Seq returns the sequence number of the newest prediction request.
func (v *View) Seq() uint64 {
	return v.seq.Load()
}

// SetBoundary replaces the boundary, draws it and drops overlays derived from the old one.
// In-flight predictions and renders for the old boundary are cancelled.
func (v *View) SetBoundary(ring geo.Ring) error {
	closed := ring.Close()
	if err := closed.ValidateClosed(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq.Add(1)
	v.cancelLocked()
	if err := v.renderer.DrawBoundary(closed); err != nil {
		return err
	}
	v.boundary.Store(&closed)
	v.samples.Store(nil)
	v.zoning.Store(nil)
	v.canvas.Store(nil)
	v.surface.Clear(overlay.LayerCells)
	v.surface.Clear(overlay.LayerRaster)

	zap.L().Info("session: boundary set",
		zap.Int("points", len(closed)-1),
		zap.Float64("area_ha", geo.AreaHectares(closed)))
	return nil
}

// Refresh requests predictions for the boundary and applies them. The previous in-flight
// request is cancelled. If a newer request started before this one finished, the result is
// discarded and ErrStale returned. Failed or malformed responses leave the current samples
// and overlays untouched.
func (v *View) Refresh(ctx context.Context) (*overlay.Zoning, error) {
	ring := v.Boundary()
	if ring == nil {
		return nil, ErrNoBoundary
	}

	if RequestID(ctx) == "" {
		ctx = WithRequestID(ctx, uuid.NewString())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	seq := v.seq.Add(1)
	if v.cancelPredict != nil {
		v.cancelPredict()
	}
	v.cancelPredict = cancel
	v.mu.Unlock()

	log := zap.L().With(zap.String("request_id", RequestID(ctx)), zap.Uint64("seq", seq))
	log.Info("session: prediction requested", zap.Int("points", len(ring)-1))

	samples, err := v.client.Predict(ctx, ring, v.params)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seq.Load() != seq {
		log.Debug("session: stale prediction dropped")
		return nil, ErrStale
	}
	v.cancelPredict = nil

	if err != nil {
		log.Warn("session: prediction failed", zap.Error(err))
		return nil, err
	}

	z, err := v.applyLocked(samples)
	if err != nil {
		log.Warn("session: prediction rejected", zap.Error(err))
		return nil, err
	}
	log.Info("session: prediction applied", zap.Int("samples", samples.Len()))
	return z, nil
}

// Apply replaces the samples with s, for sample sets loaded from elsewhere. A valid s
// supersedes any in-flight prediction; an invalid one leaves it running.
func (v *View) Apply(s *raster.SampleSet) (*overlay.Zoning, error) {
	if s == nil {
		return nil, ErrNoSamples
	}
	if err := s.RequireSamples(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq.Add(1)
	if v.cancelPredict != nil {
		v.cancelPredict()
		v.cancelPredict = nil
	}
	return v.applyLocked(s)
}

func (v *View) applyLocked(s *raster.SampleSet) (*overlay.Zoning, error) {
	if s == nil {
		return nil, ErrNoSamples
	}
	z, err := v.renderer.RenderCells(s, v.cellSize)
	if err != nil {
		return nil, err
	}

	if v.cancelRender != nil {
		v.cancelRender()
		v.cancelRender = nil
	}
	v.surface.Clear(overlay.LayerRaster)
	v.canvas.Store(nil)
	v.samples.Store(s)
	v.zoning.Store(z)
	return z, nil
}

// Record returns the hand-off record for the active boundary.
func (v *View) Record(name string) (geo.FieldRecord, error) {
	ring := v.Boundary()
	if ring == nil {
		return geo.FieldRecord{}, ErrNoBoundary
	}
	return geo.NewFieldRecord(name, ring), nil
}

// Close cancels any in-flight work.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelLocked()
}

func (v *View) cancelLocked() {
	if v.cancelPredict != nil {
		v.cancelPredict()
		v.cancelPredict = nil
	}
	if v.cancelRender != nil {
		v.cancelRender()
		v.cancelRender = nil
	}
}
