// Package prediction is the HTTP client for the per-cell prediction service.
package prediction

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
)

// DefaultBaseURL is the prediction service address used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

const predictPath = "/pnc/predict"

// Client requests per-cell predictions for a field boundary.
type Client interface {
	// Predict sends the closed boundary and returns the validated sample set.
	Predict(ctx context.Context, ring geo.Ring, params Params) (*raster.SampleSet, error)
}

// Params are the satellite-composite parameters forwarded to the service.
type Params struct {
	ProjectID      string  `json:"project_id" mapstructure:"project_id"`
	DateStart      string  `json:"date_start" mapstructure:"date_start"`
	DateEnd        string  `json:"date_end" mapstructure:"date_end"`
	CellSizeMeters float64 `json:"cell_size_m" mapstructure:"cell_size_m"`
	MaxCloudPct    float64 `json:"max_cloud_pct" mapstructure:"max_cloud_pct"`
	RedEdgeBand    string  `json:"rededge_band" mapstructure:"rededge_band"`
	Composite      string  `json:"composite" mapstructure:"composite"`
}

// DefaultParams returns the parameters used by the field map when nothing is configured.
func DefaultParams() Params {
	return Params{
		ProjectID:      "harvestai-482321",
		DateStart:      "2024-08-10",
		DateEnd:        "2024-09-29",
		CellSizeMeters: 4,
		MaxCloudPct:    20,
		RedEdgeBand:    "B5",
		Composite:      "median",
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.ProjectID == "" {
		p.ProjectID = d.ProjectID
	}
	if p.DateStart == "" {
		p.DateStart = d.DateStart
	}
	if p.DateEnd == "" {
		p.DateEnd = d.DateEnd
	}
	if p.CellSizeMeters <= 0 {
		p.CellSizeMeters = d.CellSizeMeters
	}
	if p.MaxCloudPct <= 0 {
		p.MaxCloudPct = d.MaxCloudPct
	}
	if p.RedEdgeBand == "" {
		p.RedEdgeBand = d.RedEdgeBand
	}
	if p.Composite == "" {
		p.Composite = d.Composite
	}
	return p
}

// Validate checks the enumerated and ranged fields.
func (p Params) Validate() error {
	switch p.RedEdgeBand {
	case "B5", "B6", "B7":
	default:
		return eris.Errorf("prediction: rededge_band %q must be one of B5, B6, B7", p.RedEdgeBand)
	}
	switch p.Composite {
	case "median", "least_cloudy_mosaic":
	default:
		return eris.Errorf("prediction: composite %q must be median or least_cloudy_mosaic", p.Composite)
	}
	if p.MaxCloudPct < 0 || p.MaxCloudPct > 100 {
		return eris.Errorf("prediction: max_cloud_pct %v out of range [0,100]", p.MaxCloudPct)
	}
	if p.CellSizeMeters <= 0 {
		return eris.New("prediction: cell_size_m must be positive")
	}
	if p.DateStart != "" && p.DateEnd != "" {
		start, err := time.Parse(time.DateOnly, p.DateStart)
		if err != nil {
			return eris.Wrap(err, "prediction: parse date_start")
		}
		end, err := time.Parse(time.DateOnly, p.DateEnd)
		if err != nil {
			return eris.Wrap(err, "prediction: parse date_end")
		}
		if end.Before(start) {
			return eris.New("prediction: date_end is before date_start")
		}
	}
	return nil
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the service address.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithTimeout sets the per-request timeout. Predictions that fetch satellite composites
// can take minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

type httpClient struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient creates a prediction Client with the given options.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http:    &http.Client{},
		baseURL: DefaultBaseURL,
		limiter: rate.NewLimiter(2, 2),
		timeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
