package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "reactive",
			Version:     "dev",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
		Schedulers: SchedulersConfig{
			IO: PoolConfig{
				Name:    "io",
				Workers: 64,
			},
			Computation: PoolConfig{
				Name:    "computation",
				Workers: 0, // GOMAXPROCS
			},
			RateLimit: RateLimitConfig{
				Enabled:         false,
				EventsPerSecond: 100,
				Burst:           10,
			},
		},
	}
}
