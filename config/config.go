// Package config provides configuration management for the reactive runtime.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the global configuration for the runtime.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Schedulers sizes the shared schedulers.
	Schedulers SchedulersConfig `mapstructure:"schedulers"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name, used as the tracing service name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled enables tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter; only otlpgrpc is supported.
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint, host:port or a URL.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is always_on, always_off or parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces sampled by the ratio sampler.
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// SchedulersConfig holds the shared scheduler settings.
type SchedulersConfig struct {
	// IO is the pool used for blocking work.
	IO PoolConfig `mapstructure:"io"`

	// Computation is the pool used for CPU-bound work.
	Computation PoolConfig `mapstructure:"computation"`

	// RateLimit throttles actions handed to the IO pool.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// PoolConfig sizes one worker pool.
type PoolConfig struct {
	// Name labels the pool in logs and metrics.
	Name string `mapstructure:"name"`

	// Workers is the number of worker goroutines. Zero means GOMAXPROCS.
	Workers int `mapstructure:"workers" validate:"min=0,max=4096"`
}

// RateLimitConfig holds token bucket settings.
type RateLimitConfig struct {
	// Enabled wraps the IO pool in a rate limiter.
	Enabled bool `mapstructure:"enabled"`

	// EventsPerSecond is the steady-state rate.
	EventsPerSecond float64 `mapstructure:"events_per_second" validate:"min=0"`

	// Burst is the bucket size. An enabled limiter needs at least one token,
	// or no action could ever be admitted.
	Burst int `mapstructure:"burst" validate:"min=0,required_if=Enabled true"`
}

// Validate performs validation on the configuration. A tracing exporter left
// empty while tracing is enabled is normalized to otlpgrpc.
func (c *Config) Validate() error {
	c.normalize()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Enabled && c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlpgrpc"
	}
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Log: %s, IO: %d, Computation: %d}",
		c.App.Name, c.App.Environment, c.Log.Level,
		c.Schedulers.IO.Workers, c.Schedulers.Computation.Workers)
}
