package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/overlay"
	"github.com/sells-group/fieldmap/internal/session"
)

var (
	renderBoundary string
	renderSamples  string
	renderPNG      string
	renderGeoJSON  string
	renderWidth    int
	renderHeight   int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the zoned cell overlay and raster for a field",
	Long:  "Loads samples from a file or the prediction service, writes the cell overlay as GeoJSON and the interpolated raster as PNG.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if renderPNG == "" && renderGeoJSON == "" {
			return eris.New("render: nothing to write, set --png and/or --geojson")
		}
		if err := cfg.Validate("render"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fc, view, err := loadView(ctx)
		if err != nil {
			return err
		}
		defer view.Close()

		// The cell overlay is written before the raster adds its image footprint.
		if renderGeoJSON != "" {
			data, err := json.MarshalIndent(fc, "", "  ")
			if err != nil {
				return eris.Wrap(err, "render: encode geojson")
			}
			if err := os.WriteFile(renderGeoJSON, data, 0o644); err != nil {
				return eris.Wrap(err, "render: write geojson")
			}
		}
		if renderPNG != "" {
			if err := writeRaster(ctx, view, renderPNG); err != nil {
				return err
			}
		}

		z := view.Zoning()
		fields := []zap.Field{
			zap.Int("cells", len(z.Cells)),
			zap.Float64("lo", z.Scale.Lo),
			zap.Float64("hi", z.Scale.Hi),
		}
		for _, st := range z.Stats {
			fields = append(fields, zap.Float64(st.Class.String()+"_pct", st.Percent))
		}
		zap.L().Info("render complete", fields...)
		return nil
	},
}

func loadView(ctx context.Context) (*overlay.FeatureCollector, *session.View, error) {
	ring, err := readBoundary(renderBoundary)
	if err != nil {
		return nil, nil, err
	}
	ropts, err := rendererOptions(cfg.Zone)
	if err != nil {
		return nil, nil, err
	}

	predictor, closeFn, err := buildPredictor(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer closeFn()

	opts := cfg.Raster.RenderOptions()
	opts.Width, opts.Height = renderWidth, renderHeight

	fc := overlay.NewFeatureCollector()
	view := session.NewView(predictor, fc,
		session.WithParams(cfg.Prediction.Params),
		session.WithCellSize(cfg.Raster.CellSizeMeters),
		session.WithRenderOptions(opts),
		session.WithRendererOptions(ropts...))
	if err := view.SetBoundary(ring); err != nil {
		return nil, nil, err
	}

	if renderSamples != "" {
		s, err := readSamples(renderSamples)
		if err != nil {
			return nil, nil, err
		}
		_, err = view.Apply(s)
		if err != nil {
			return nil, nil, err
		}
		return fc, view, nil
	}

	if _, err := view.Refresh(ctx); err != nil {
		return nil, nil, err
	}
	return fc, view, nil
}

func writeRaster(ctx context.Context, view *session.View, path string) error {
	task, err := view.StartRender(ctx)
	if err != nil {
		return err
	}
	canvas, err := task.Wait(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "render: create png")
	}
	if err := canvas.EncodePNG(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "render: close png")
}

func init() {
	renderCmd.Flags().StringVar(&renderBoundary, "boundary", "", "JSON file of [lon, lat] pairs (required)")
	renderCmd.Flags().StringVar(&renderSamples, "samples", "", "saved prediction response; the service is called when empty")
	renderCmd.Flags().StringVar(&renderPNG, "png", "", "write the interpolated raster to this PNG file")
	renderCmd.Flags().StringVar(&renderGeoJSON, "geojson", "", "write the cell overlay to this GeoJSON file")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "raster width in pixels (default from aspect ratio)")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "raster height in pixels (default from aspect ratio)")
	_ = renderCmd.MarkFlagRequired("boundary")
	rootCmd.AddCommand(renderCmd)
}
