package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/api"
	"github.com/sells-group/fieldmap/internal/config"
)

var (
	servePort        int
	serveImageCache  int
	serveImageTTL    time.Duration
	serveRenderLimit time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the overlay HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handler, closeFn, err := buildAPI(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildAPI wires the predictor and renderer settings into the HTTP handler.
func buildAPI(ctx context.Context, c *config.Config) (http.Handler, func(), error) {
	ropts, err := rendererOptions(c.Zone)
	if err != nil {
		return nil, nil, err
	}
	predictor, closeFn, err := buildPredictor(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	var images *api.ImageCache
	if serveImageCache > 0 {
		images = api.NewImageCache(serveImageCache, serveImageTTL)
	}

	srv := api.NewServer(predictor, api.Settings{
		Params:          c.Prediction.Params,
		CellSizeMeters:  c.Raster.CellSizeMeters,
		Render:          c.Raster.RenderOptions(),
		RendererOptions: ropts,
		AllowedOrigins:  c.Server.AllowedOrigins,
		RenderTimeout:   serveRenderLimit,
	}, images)
	return srv.Router(), closeFn, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().IntVar(&serveImageCache, "image-cache", 256, "rendered PNGs kept in memory (0 disables)")
	serveCmd.Flags().DurationVar(&serveImageTTL, "image-ttl", 15*time.Minute, "lifetime of a cached PNG")
	serveCmd.Flags().DurationVar(&serveRenderLimit, "render-timeout", time.Minute, "maximum time spent rendering one raster")
	rootCmd.AddCommand(serveCmd)
}
