package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/resilience"
	"github.com/sells-group/fieldmap/internal/samplecache"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

// Predictor wraps a prediction.Client with caching, retries and a circuit breaker.
// It implements prediction.Client.
type Predictor struct {
	client  prediction.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	cache   *samplecache.Cache
}

var _ prediction.Client = (*Predictor)(nil)

// PredictorOption configures a Predictor.
type PredictorOption func(*Predictor)

// WithRetry sets the retry policy. MaxAttempts 1 disables retries.
func WithRetry(cfg resilience.RetryConfig) PredictorOption {
	return func(p *Predictor) {
		p.retry = cfg
	}
}

// WithBreaker routes calls through b.
func WithBreaker(b *resilience.Breaker) PredictorOption {
	return func(p *Predictor) {
		p.breaker = b
	}
}

// WithCache serves repeated requests from c.
func WithCache(c *samplecache.Cache) PredictorOption {
	return func(p *Predictor) {
		p.cache = c
	}
}

// NewPredictor wraps client.
func NewPredictor(client prediction.Client, opts ...PredictorOption) *Predictor {
	p := &Predictor{client: client, retry: resilience.DefaultRetryConfig()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict returns cached samples when available, otherwise calls the service.
// Cache failures are logged and never fail the request.
func (p *Predictor) Predict(ctx context.Context, ring geo.Ring, params prediction.Params) (*raster.SampleSet, error) {
	log := zap.L().With(zap.String("request_id", RequestID(ctx)))

	var key string
	if p.cache != nil {
		key = samplecache.Key(ring, params)
		cached, err := p.cache.Get(ctx, key)
		if err != nil {
			log.Warn("session: sample cache read failed", zap.Error(err))
		}
		if cached != nil {
			return cached, nil
		}
	}

	cfg := p.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("predict", zap.String("request_id", RequestID(ctx)))
	}
	samples, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*raster.SampleSet, error) {
		return resilience.Call(ctx, p.breaker, func(ctx context.Context) (*raster.SampleSet, error) {
			return p.client.Predict(ctx, ring, params)
		})
	})
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, key, samples); err != nil {
			log.Warn("session: sample cache write failed", zap.Error(err))
		}
	}
	return samples, nil
}
