package config

import (
	"golang.org/x/time/rate"

	"github.com/goclaw/reactive/pkg/logger"
	"github.com/goclaw/reactive/pkg/metrics"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// Schedulers holds the shared schedulers built from SchedulersConfig.
type Schedulers struct {
	// IO runs blocking work. It is rate limited when configured.
	IO scheduler.Scheduler
	// Computation runs CPU-bound work.
	Computation *scheduler.Pool

	ioPool  *scheduler.Pool
	limiter *rate.Limiter
}

// NewSchedulers creates and starts the pools described by c.
func NewSchedulers(c SchedulersConfig) *Schedulers {
	ioPool := scheduler.NewPool(c.IO.Name, c.IO.Workers)
	computation := scheduler.NewPool(c.Computation.Name, c.Computation.Workers)
	ioPool.Start()
	computation.Start()

	s := &Schedulers{IO: ioPool, Computation: computation, ioPool: ioPool}
	if c.RateLimit.Enabled {
		s.limiter = c.RateLimit.Limiter()
		s.IO = scheduler.NewRateLimited(ioPool, s.limiter)
	}
	return s
}

// ApplyRateLimit updates the IO limiter in place. It reports false when the
// schedulers were built without rate limiting.
func (s *Schedulers) ApplyRateLimit(c RateLimitConfig) bool {
	if s.limiter == nil {
		return false
	}
	fresh := c.Limiter()
	s.limiter.SetLimit(fresh.Limit())
	s.limiter.SetBurst(fresh.Burst())
	return true
}

// Stop drains and stops both pools.
func (s *Schedulers) Stop() {
	s.ioPool.Stop()
	s.Computation.Stop()
}

// Limiter returns the token bucket described by c.
func (c RateLimitConfig) Limiter() *rate.Limiter {
	limit := rate.Limit(c.EventsPerSecond)
	if c.EventsPerSecond <= 0 {
		limit = rate.Inf
	}
	return rate.NewLimiter(limit, c.Burst)
}

// LoggerConfig converts c to the logger package configuration.
func (c LogConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.ParseLevel(c.Level),
		Format: c.Format,
		Output: c.Output,
	}
}

// ManagerConfig converts c to the metrics manager configuration.
func (c MetricsConfig) ManagerConfig() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Path != "" {
		cfg.Path = c.Path
	}
	return cfg
}
