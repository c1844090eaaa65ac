package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/config"
	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/overlay"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/resilience"
	"github.com/sells-group/fieldmap/internal/samplecache"
	"github.com/sells-group/fieldmap/internal/session"
	"github.com/sells-group/fieldmap/internal/zone"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

// buildPredictor assembles the prediction client with cache, retries and breaker.
// The returned func releases the cache.
func buildPredictor(ctx context.Context, c *config.Config) (*session.Predictor, func(), error) {
	client := prediction.NewClient(
		prediction.WithBaseURL(c.Prediction.BaseURL),
		prediction.WithTimeout(c.Prediction.Timeout()),
		prediction.WithRateLimit(c.Prediction.RateLimit),
	)

	opts := []session.PredictorOption{
		session.WithRetry(c.Retry.RetryConfig),
		session.WithBreaker(resilience.NewBreaker(c.Retry.Breaker)),
	}
	closeFn := func() {}

	if c.Cache.Enabled {
		cache, err := samplecache.Open(c.Cache.Path, c.Cache.TTL())
		if err != nil {
			return nil, nil, err
		}
		if err := cache.Migrate(ctx); err != nil {
			cache.Close() //nolint:errcheck
			return nil, nil, err
		}
		if n, err := cache.DeleteExpired(ctx); err != nil {
			zap.L().Warn("sample cache cleanup failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Debug("sample cache cleaned", zap.Int("expired", n))
		}
		opts = append(opts, session.WithCache(cache))
		closeFn = func() { _ = cache.Close() }
	}

	return session.NewPredictor(client, opts...), closeFn, nil
}

// rendererOptions converts the zone config into overlay renderer options.
func rendererOptions(c config.ZoneConfig) ([]overlay.RendererOption, error) {
	th, err := c.ResolveThresholds()
	if err != nil {
		return nil, err
	}
	ch, err := overlay.ParseChannel(c.Channel)
	if err != nil {
		return nil, err
	}
	opts := []overlay.RendererOption{
		overlay.WithThresholds(th),
		overlay.WithNormalize(zone.Options{Gamma: c.Gamma, Invert: c.Invert}),
		overlay.WithChannel(ch),
	}
	if c.ZonedRaster {
		opts = append(opts, overlay.WithZonedRaster())
	}
	return opts, nil
}

// readBoundary reads a JSON array of [lon, lat] pairs.
func readBoundary(path string) (geo.Ring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read boundary %s", path)
	}
	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, eris.Wrapf(err, "parse boundary %s", path)
	}
	return geo.RingFromLonLatPairs(pairs)
}

// readSamples reads a prediction response saved as JSON.
func readSamples(path string) (*raster.SampleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read samples %s", path)
	}
	var s raster.SampleSet
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "parse samples %s", path)
	}
	return &s, nil
}
