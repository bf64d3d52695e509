package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goclaw/reactive/config"
	"github.com/goclaw/reactive/pkg/bus"
	"github.com/goclaw/reactive/pkg/logger"
	"github.com/goclaw/reactive/pkg/scheduler"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Schedulers.IO.Workers = 2
	cfg.Schedulers.Computation.Workers = 1
	return cfg
}

func TestStartHeartbeat(t *testing.T) {
	ticks := bus.NewDispatcher[int]()
	io := scheduler.NewManual()
	computation := scheduler.NewManual()

	var beats []int
	h := startHeartbeat(ticks.Bus, io, computation, func(n int, _ time.Duration) {
		beats = append(beats, n)
	})

	ticks.OnEvent(1)
	ticks.OnEvent(2)
	if len(beats) != 0 {
		t.Fatal("beats must wait for the schedulers")
	}

	// Ticks are observed on computation, pings run on io, results come
	// back on computation.
	computation.RunAll()
	if n := h.inflight.Len(); n != 2 {
		t.Fatalf("expected 2 pings in flight, got %d", n)
	}
	io.RunAll()
	computation.RunAll()

	if len(beats) != 2 || beats[0] != 1 || beats[1] != 2 {
		t.Fatalf("unexpected beats: %v", beats)
	}
	if n := h.inflight.Len(); n != 0 {
		t.Fatalf("finished pings still held: %d", n)
	}

	ticks.OnEvent(3)
	computation.RunAll()
	if err := h.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	io.RunAll()
	computation.RunAll()
	if len(beats) != 2 {
		t.Fatalf("cancelled ping delivered a beat: %v", beats)
	}
}

func TestStartHeartbeat_ReleasesFinishedPings(t *testing.T) {
	ticks := bus.NewDispatcher[int]()
	immediate := scheduler.Immediate()

	var beats int
	h := startHeartbeat(ticks.Bus, immediate, immediate, func(int, time.Duration) { beats++ })
	defer h.Cancel()

	for n := 1; n <= 100; n++ {
		ticks.OnEvent(n)
	}
	if beats != 100 {
		t.Fatalf("expected 100 beats, got %d", beats)
	}
	if n := h.inflight.Len(); n != 0 {
		t.Fatalf("finished pings still held: %d", n)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	prev := logger.SetGlobal(logger.Discard())
	defer logger.SetGlobal(prev)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(), "", 10*time.Millisecond) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after the context ended")
	}
}

func TestRun_WithConfigFile(t *testing.T) {
	prev := logger.SetGlobal(logger.Discard())
	defer logger.SetGlobal(prev)

	path := filepath.Join(t.TempDir(), "reactive.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, testConfig(), path, 10*time.Millisecond); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestBuildOverrides(t *testing.T) {
	*appName = "cli-app"
	*logLevel = "debug"
	*ioWorkers = 4
	defer func() {
		*appName = ""
		*logLevel = ""
		*ioWorkers = 0
	}()

	overrides := buildOverrides()
	if overrides["app.name"] != "cli-app" {
		t.Errorf("unexpected app.name override: %v", overrides["app.name"])
	}
	if overrides["log.level"] != "debug" {
		t.Errorf("unexpected log.level override: %v", overrides["log.level"])
	}
	if overrides["schedulers.io.workers"] != 4 {
		t.Errorf("unexpected io workers override: %v", overrides["schedulers.io.workers"])
	}

	cfg, err := config.Load("", overrides)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schedulers.IO.Workers != 4 {
		t.Errorf("expected 4 io workers, got %d", cfg.Schedulers.IO.Workers)
	}
}
