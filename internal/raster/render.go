package raster

import (
	"context"
	"image/color"
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fieldmap/internal/geo"
)

// DefaultMaxSide is the longer canvas side in pixels when no size is given.
const DefaultMaxSide = 512

// rowsPerChunk is the number of canvas rows handled by one worker task.
const rowsPerChunk = 16

// ColorFunc maps an interpolated value to a pixel colour.
type ColorFunc func(v float64) color.NRGBA

// RenderOptions configure Render.
type RenderOptions struct {
	// Width and Height in pixels. When one is zero it follows the field aspect ratio;
	// when both are zero the longer side is MaxSide.
	Width   int
	Height  int
	MaxSide int
	IDW     IDWOptions
	// Workers bounds the number of concurrent row chunks. Zero uses GOMAXPROCS.
	Workers int
	// Colorize is required.
	Colorize ColorFunc
	// NoClip keeps pixels outside the boundary polygon (inside its bounding box).
	NoClip bool
}

// Render interpolates samples onto a canvas covering the boundary's bounding box.
// Pixels outside the boundary or with no sample within the cutoff stay transparent.
// A nil boundary renders over the sample extent. Render either returns a complete canvas
// or an error; cancelling ctx aborts with ctx.Err().
func Render(ctx context.Context, s *SampleSet, boundary geo.Ring, opts RenderOptions) (*Canvas, error) {
	if opts.Colorize == nil {
		return nil, eris.New("raster: render requires a colour function")
	}
	ip, err := NewInterpolator(s, opts.IDW)
	if err != nil {
		return nil, err
	}

	bounds := extent(s, boundary, ip.opts.CellSize)
	w, h := canvasSize(bounds, opts)
	canvas, err := NewCanvas(w, h, bounds)
	if err != nil {
		return nil, err
	}

	clip := len(boundary) >= geo.MinPoints && !opts.NoClip
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := zap.L().With(zap.String("component", "raster.render"),
		zap.Int("width", w), zap.Int("height", h), zap.Int("samples", s.Len()))
	log.Debug("rendering raster", zap.Float64("cutoff_m", ip.opts.Cutoff), zap.Int("workers", workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < h; start += rowsPerChunk {
		end := min(start+rowsPerChunk, h)
		g.Go(func() error {
			var b bestK
			for y := start; y < end; y++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				for x := 0; x < w; x++ {
					q := canvas.PixelCenter(x, y)
					if clip && !boundary.Contains(q) {
						continue
					}
					v, ok := ip.interpolate(q, &b)
					if !ok {
						continue
					}
					canvas.Set(x, y, opts.Colorize(v))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "raster: render")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: render")
	}

	log.Debug("raster rendered", zap.Int("opaque", canvas.Opaque()))
	return canvas, nil
}

// extent is the boundary bounding box, or the sample extent padded by half a cell.
func extent(s *SampleSet, boundary geo.Ring, cellSize float64) geo.Bounds {
	if len(boundary) >= geo.MinPoints {
		if b := boundary.Bounds(); !b.IsEmpty() {
			return b
		}
	}
	b := s.Bounds()
	dLat := cellSize / 2 / geo.MetersPerDegree
	dLon := cellSize / 2 / geo.MetersPerDegreeLon(b.Center().Lat)
	return geo.Bounds{
		West:  b.West - dLon,
		South: b.South - dLat,
		East:  b.East + dLon,
		North: b.North + dLat,
	}
}

func canvasSize(b geo.Bounds, opts RenderOptions) (int, int) {
	wm, hm := b.SizeMeters()
	aspect := 1.0
	if hm > 0 && wm > 0 {
		aspect = wm / hm
	}
	switch {
	case opts.Width > 0 && opts.Height > 0:
		return opts.Width, opts.Height
	case opts.Width > 0:
		return opts.Width, max(1, int(math.Round(float64(opts.Width)/aspect)))
	case opts.Height > 0:
		return max(1, int(math.Round(float64(opts.Height)*aspect))), opts.Height
	}
	side := opts.MaxSide
	if side <= 0 {
		side = DefaultMaxSide
	}
	if aspect >= 1 {
		return side, max(1, int(math.Round(float64(side)/aspect)))
	}
	return max(1, int(math.Round(float64(side)*aspect))), side
}
