// Command reactive runs a heartbeat pipeline on the configured schedulers and
// serves its metrics. It is the reference host for the reactive packages:
// configuration, hot reload, logging, metrics and tracing are wired the way
// an embedding service would wire them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goclaw/reactive/config"
	"github.com/goclaw/reactive/pkg/bus"
	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/logger"
	"github.com/goclaw/reactive/pkg/metrics"
	"github.com/goclaw/reactive/pkg/scheduler"
	"github.com/goclaw/reactive/pkg/task"
	"github.com/goclaw/reactive/pkg/telemetry/tracing"
	"github.com/goclaw/reactive/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName   = flag.String("app-name", "", "Override app name")
	logLevel  = flag.String("log-level", "", "Override log level")
	ioWorkers = flag.Int("io-workers", 0, "Override the IO pool size")
	interval  = flag.Duration("interval", time.Second, "Heartbeat interval")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.LoggerConfig())
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("Starting reactive",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, *interval); err != nil {
		log.Error("reactive stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("reactive stopped gracefully")
}

// run wires the runtime described by cfg and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, path string, every time.Duration) error {
	log := logger.Global()

	metricsManager := metrics.NewManager(cfg.Metrics.ManagerConfig())
	uninstall := metricsManager.Install()
	defer uninstall()
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App, tracing.WithExportRecorder(metricsManager))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	prevHandler := fault.SetHandler(func(err error) {
		log.Error("undeliverable error", "kind", fault.Kind(err), "error", err)
	})
	defer fault.SetHandler(prevHandler)

	schedulers := config.NewSchedulers(cfg.Schedulers)
	defer schedulers.Stop()

	handles := cancel.NewComposite()
	defer handles.Cancel()

	if path != "" {
		watcher, err := config.NewWatcher(path, config.NewLoader(), config.WithInitial(cfg))
		if err != nil {
			return err
		}
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn("config watcher stopped", "error", err)
			}
		}()
		_ = handles.Add(watcher.HotReloadable().ListenFunc(func(h config.HotReloadableConfig) {
			logger.SetLevel(logger.ParseLevel(h.LogLevel))
			if schedulers.ApplyRateLimit(h.RateLimit) {
				log.Info("rate limit updated", "events_per_second", h.RateLimit.EventsPerSecond, "burst", h.RateLimit.Burst)
			}
		}))
	}

	ticks := bus.NewDispatcher[int]()
	var beats atomic.Int64
	_ = handles.Add(startHeartbeat(ticks.Bus, schedulers.IO, schedulers.Computation,
		func(n int, lag time.Duration) {
			beats.Add(1)
			log.Debug("heartbeat", "n", n, "lag", lag)
		},
		tracing.WithRecorder(metricsManager),
	))

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			log.Info("heartbeat stopped", "beats", beats.Load())
			return nil
		case <-ticker.C:
			ticks.OnEvent(n)
		}
	}
}

// heartbeat pings io for every tick and reports the round trip on
// computation. Pings still running when it is cancelled are cancelled with
// it; finished pings leave inflight.
type heartbeat struct {
	inflight *cancel.Composite
	handles  *cancel.Composite
}

func startHeartbeat(ticks *bus.Bus[int], io, computation scheduler.Scheduler, onBeat func(n int, lag time.Duration), opts ...tracing.Option) *heartbeat {
	h := &heartbeat{inflight: cancel.NewComposite()}
	sub := bus.ObserveOn(ticks, computation).ListenFunc(func(n int) {
		h.ping(n, io, computation, onBeat, opts)
	})
	h.handles = cancel.NewComposite(sub, h.inflight)
	return h
}

func (h *heartbeat) ping(n int, io, computation scheduler.Scheduler, onBeat func(n int, lag time.Duration), opts []tracing.Option) {
	// The slot is stored before the ping starts so a ping that finishes
	// synchronously is removed after it was added.
	slot := cancel.NewSerial()
	_ = h.inflight.Add(slot)

	sent := time.Now()
	ping := task.FromCallable(io, func() (time.Duration, error) {
		return time.Since(sent), nil
	})
	_ = slot.Set(tracing.Task(ping, "heartbeat.ping", opts...).
		ObserveOn(computation).
		StartFuncs(
			func(lag time.Duration) {
				h.inflight.Remove(slot)
				onBeat(n, lag)
			},
			func(err error) {
				h.inflight.Remove(slot)
				logger.Warn("heartbeat ping failed", "n", n, "error", err)
			},
		))
}

// Cancel stops listening for ticks and cancels the running pings.
func (h *heartbeat) Cancel() error { return h.handles.Cancel() }

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *ioWorkers > 0 {
		overrides["schedulers.io.workers"] = *ioWorkers
	}

	return overrides
}

func printVersion() {
	fmt.Printf("reactive - in-process reactive primitives\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("reactive - heartbeat host for the reactive packages\n\n")
	fmt.Printf("Usage: reactive [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  reactive                                  # Run with default config\n")
	fmt.Printf("  reactive -config reactive.yaml            # Use and watch a config file\n")
	fmt.Printf("  reactive -interval 100ms -log-level debug # Override specific options\n")
	fmt.Printf("  reactive -version                         # Print version info\n")
}
