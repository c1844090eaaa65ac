package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/raster"
)

// RenderResult is the outcome of a RenderTask: a finished canvas or an error.
type RenderResult struct {
	Canvas *raster.Canvas
	Err    error
}

// RenderTask is a raster render running in the background.
type RenderTask struct {
	cancel context.CancelFunc
	done   chan RenderResult
}

// Done delivers exactly one result.
func (t *RenderTask) Done() <-chan RenderResult {
	return t.done
}

// Cancel stops the render. The result then carries the cancellation error.
func (t *RenderTask) Cancel() {
	t.cancel()
}

// Wait blocks until the render finishes or ctx is done.
func (t *RenderTask) Wait(ctx context.Context) (*raster.Canvas, error) {
	select {
	case res := <-t.done:
		return res.Canvas, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartRender interpolates the current samples over the boundary in the background and shows
// the canvas when done. A previous render still running is cancelled. If the samples change
// before the render finishes, the canvas is discarded and the result carries ErrStale.
func (v *View) StartRender(ctx context.Context) (*RenderTask, error) {
	samples := v.Samples()
	if samples == nil {
		return nil, ErrNoSamples
	}
	if err := samples.RequireSamples(); err != nil {
		return nil, err
	}
	ring := v.Boundary()

	ctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	if v.cancelRender != nil {
		v.cancelRender()
	}
	v.cancelRender = cancel
	v.mu.Unlock()

	opts := v.renderOpts
	opts.Colorize = v.renderer.Colorizer(samples)
	task := &RenderTask{cancel: cancel, done: make(chan RenderResult, 1)}

	go func() {
		defer cancel()
		canvas, err := raster.Render(ctx, samples, ring, opts)
		if err == nil {
			err = v.showCanvas(samples, canvas)
		}
		if err != nil {
			zap.L().Debug("session: render finished without canvas", zap.Error(err))
			canvas = nil
		}
		task.done <- RenderResult{Canvas: canvas, Err: err}
	}()
	return task, nil
}

func (v *View) showCanvas(samples *raster.SampleSet, canvas *raster.Canvas) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.samples.Load() != samples {
		return ErrStale
	}
	v.renderer.ShowCanvas(canvas)
	v.canvas.Store(canvas)
	return nil
}
