package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fieldmap/internal/raster"
	"github.com/sells-group/fieldmap/internal/resilience"
	"github.com/sells-group/fieldmap/internal/zone"
	"github.com/sells-group/fieldmap/pkg/prediction"
)

// Config holds the full application configuration.
type Config struct {
	Prediction PredictionConfig `yaml:"prediction" mapstructure:"prediction"`
	Raster     RasterConfig     `yaml:"raster" mapstructure:"raster"`
	Zone       ZoneConfig       `yaml:"zone" mapstructure:"zone"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PredictionConfig configures the prediction service client and request defaults.
type PredictionConfig struct {
	BaseURL     string            `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	Params      prediction.Params `yaml:"params" mapstructure:"params"`
}

// Timeout returns the per-request timeout.
func (p PredictionConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// RasterConfig configures cell grids and raster rendering.
type RasterConfig struct {
	CellSizeMeters float64           `yaml:"cell_size_m" mapstructure:"cell_size_m"`
	MaxSide        int               `yaml:"max_side" mapstructure:"max_side"`
	Workers        int               `yaml:"workers" mapstructure:"workers"`
	IDW            raster.IDWOptions `yaml:"idw" mapstructure:"idw"`
}

// RenderOptions converts the config into raster render options.
func (r RasterConfig) RenderOptions() raster.RenderOptions {
	return raster.RenderOptions{MaxSide: r.MaxSide, Workers: r.Workers, IDW: r.IDW}
}

// ZoneConfig configures normalization, classification and colouring.
type ZoneConfig struct {
	// ThresholdsFile is an optional YAML threshold table overriding Thresholds.
	ThresholdsFile string          `yaml:"thresholds_file" mapstructure:"thresholds_file"`
	Thresholds     zone.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	Gamma          float64         `yaml:"gamma" mapstructure:"gamma"`
	Invert         bool            `yaml:"invert" mapstructure:"invert"`
	Channel        string          `yaml:"channel" mapstructure:"channel"`
	ZonedRaster    bool            `yaml:"zoned_raster" mapstructure:"zoned_raster"`
}

// ResolveThresholds returns the table from ThresholdsFile when set, else Thresholds.
func (z ZoneConfig) ResolveThresholds() (zone.Thresholds, error) {
	if z.ThresholdsFile != "" {
		return zone.LoadThresholds(z.ThresholdsFile)
	}
	if err := z.Thresholds.Validate(); err != nil {
		return zone.Thresholds{}, err
	}
	return z.Thresholds, nil
}

// CacheConfig configures the SQLite sample cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// RetryConfig configures retries and the circuit breaker around prediction calls.
type RetryConfig struct {
	resilience.RetryConfig `yaml:",inline" mapstructure:",squash"`
	Breaker                resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIELDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	d := prediction.DefaultParams()
	v.SetDefault("prediction.base_url", prediction.DefaultBaseURL)
	v.SetDefault("prediction.timeout_secs", 180)
	v.SetDefault("prediction.rate_limit", 2.0)
	v.SetDefault("prediction.params.project_id", d.ProjectID)
	v.SetDefault("prediction.params.date_start", d.DateStart)
	v.SetDefault("prediction.params.date_end", d.DateEnd)
	v.SetDefault("prediction.params.cell_size_m", d.CellSizeMeters)
	v.SetDefault("prediction.params.max_cloud_pct", d.MaxCloudPct)
	v.SetDefault("prediction.params.rededge_band", d.RedEdgeBand)
	v.SetDefault("prediction.params.composite", d.Composite)
	v.SetDefault("raster.cell_size_m", raster.DefaultCellSize)
	v.SetDefault("raster.max_side", raster.DefaultMaxSide)
	v.SetDefault("raster.workers", 0)
	v.SetDefault("raster.idw.neighbors", raster.DefaultNeighbors)
	v.SetDefault("raster.idw.power", raster.DefaultPower)
	v.SetDefault("raster.idw.cutoff_m", 0.0)
	v.SetDefault("zone.thresholds.observe", zone.DefaultThresholds.Observe)
	v.SetDefault("zone.thresholds.treat", zone.DefaultThresholds.Treat)
	v.SetDefault("zone.thresholds.urgent", zone.DefaultThresholds.Urgent)
	v.SetDefault("zone.gamma", 1.0)
	v.SetDefault("zone.invert", false)
	v.SetDefault("zone.channel", "vegetation")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "fieldmap-cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "1s")
	v.SetDefault("retry.max_backoff", "20s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("retry.breaker.failure_threshold", 5)
	v.SetDefault("retry.breaker.cooldown", "30s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is "render" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "render", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Prediction.BaseURL == "" {
		problems = append(problems, "prediction.base_url is required")
	}
	if err := c.Prediction.Params.WithDefaults().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Raster.CellSizeMeters <= 0 {
		problems = append(problems, "raster.cell_size_m must be > 0")
	}
	if c.Raster.Workers < 0 {
		problems = append(problems, "raster.workers must be >= 0")
	}
	if _, err := c.Zone.ResolveThresholds(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		problems = append(problems, "cache.path is required when the cache is enabled")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
