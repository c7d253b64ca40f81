package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/common/validation"
	"github.com/vnykmshr/taskflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/taskflow/pkg/scheduling/supervisor"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TASKFLOW"

// Config is the complete configuration of a taskflow pipeline.
type Config struct {
	// PoolSize is the number of pool workers.
	PoolSize int `mapstructure:"pool_size" default:"4"`

	// QueueCapacity bounds both the pool intake and the supervisor channel.
	QueueCapacity int `mapstructure:"queue_capacity" default:"100"`

	// DefaultTimeout bounds each job wait in the supervisor.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" default:"30s"`

	// Consumers is the number of supervisor consumers.
	Consumers int `mapstructure:"consumers" default:"2"`

	// DrainTimeout bounds the wait for in-flight work at shutdown.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" default:"10s"`

	// Rate caps how many jobs per second producers may emit. Zero disables
	// pacing.
	Rate float64 `mapstructure:"rate" default:"0"`

	// Burst is how many jobs may be emitted back to back under Rate.
	Burst int `mapstructure:"burst" default:"1"`

	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"console"`
}

// Metrics configures Prometheus export.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled" default:"false"`
	Name    string `mapstructure:"name" default:"taskflow"`
	Addr    string `mapstructure:"addr" default:":9090"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable if a default tag is malformed.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load builds a Config from defaults, an optional file, TASKFLOW_* environment
// variables and whatever flags the caller bound on v, in increasing priority.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with v so environment variables are seen
// by Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pool_size", cfg.PoolSize)
	v.SetDefault("queue_capacity", cfg.QueueCapacity)
	v.SetDefault("default_timeout", cfg.DefaultTimeout)
	v.SetDefault("consumers", cfg.Consumers)
	v.SetDefault("drain_timeout", cfg.DrainTimeout)
	v.SetDefault("rate", cfg.Rate)
	v.SetDefault("burst", cfg.Burst)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.name", cfg.Metrics.Name)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validation.ValidatePositive("config", "PoolSize", c.PoolSize); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "QueueCapacity", c.QueueCapacity); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "Consumers", c.Consumers); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("config", "DefaultTimeout", c.DefaultTimeout); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("config", "DrainTimeout", c.DrainTimeout); err != nil {
		return err
	}
	if c.Rate < 0 {
		return gferrors.NewValidationError("config", "Rate", c.Rate, "rate cannot be negative").
			WithHint("use 0 to disable pacing")
	}
	if err := validation.ValidatePositive("config", "Burst", c.Burst); err != nil {
		return err
	}
	if err := validation.ValidateOneOf("config", "Log.Level", c.Log.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return validation.ValidateOneOf("config", "Log.Format", c.Log.Format, "console", "json")
}

// WorkerPool returns the pool configuration. Callbacks and sinks are left
// for the caller.
func (c *Config) WorkerPool() workerpool.Config {
	return workerpool.Config{
		WorkerCount: c.PoolSize,
		QueueSize:   c.QueueCapacity,
		Name:        c.Metrics.Name + "_pool",
	}
}

// Supervisor returns the supervisor configuration. Sink, Metrics and
// OnResult are left for the caller.
func (c *Config) Supervisor() supervisor.Config {
	return supervisor.Config{
		Consumers:     c.Consumers,
		QueueCapacity: c.QueueCapacity,
		JobTimeout:    c.DefaultTimeout,
		DrainTimeout:  c.DrainTimeout,
		Name:          c.Metrics.Name + "_supervisor",
	}
}

// Limiter returns the producer rate limiter, or nil when Rate is zero.
func (c *Config) Limiter() (bucket.Limiter, error) {
	if c.Rate == 0 {
		return nil, nil
	}
	return bucket.NewSafe(bucket.Limit(c.Rate), c.Burst)
}

// Logger builds a zap logger from the Log section.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zc zap.Config
	if l.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
