package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/reactive/pkg/scheduler"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	loader := NewLoader()

	t.Run("valid config path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "reactive.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, watcher.ConfigPath())
		}
		if _, ok := watcher.Current(); ok {
			t.Error("expected no current config before the first reload")
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher("", loader); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with options", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "reactive.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		initial := DefaultConfig()
		watcher, err := NewWatcher(configPath, loader, WithDebounce(100*time.Millisecond), WithInitial(initial))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.debounce != 100*time.Millisecond {
			t.Errorf("expected debounce 100ms, got %v", watcher.debounce)
		}
		if cur, ok := watcher.Current(); !ok || cur != initial {
			t.Error("expected the initial config to be current")
		}
	})
}

func TestWatcher_OnChangeReplaysLatest(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "log:\n  level: warn\n")

	initial := DefaultConfig()
	watcher, err := NewWatcher(configPath, NewLoader(), WithInitial(initial))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	var got []*Config
	h := watcher.OnChange(func(cfg *Config) { got = append(got, cfg) })
	defer h.Cancel()

	if len(got) != 1 || got[0] != initial {
		t.Fatalf("expected the initial config to be replayed, got %v", got)
	}

	watcher.reloadConfig()
	if len(got) != 2 || got[1].Log.Level != "warn" {
		t.Fatalf("expected reloaded config to be delivered, got %v", got)
	}
}

func TestWatcher_InvalidReloadKeepsCurrent(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "log:\n  level: loud\n")

	initial := DefaultConfig()
	watcher, err := NewWatcher(configPath, NewLoader(), WithInitial(initial))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	watcher.reloadConfig()
	if cur, _ := watcher.Current(); cur != initial {
		t.Fatal("an invalid file must not replace the current config")
	}
}

func TestWatcher_SubscriberPanicDoesNotEscape(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	watcher.OnChange(func(*Config) { panic("subscriber bug") })
	watcher.reloadConfig()
}

func TestWatcher_DeliveryScheduler(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "app:\n  name: scheduled\n")

	manual := scheduler.NewManual()
	watcher, err := NewWatcher(configPath, NewLoader(), WithDeliveryScheduler(manual))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	var names []string
	watcher.OnChange(func(cfg *Config) { names = append(names, cfg.App.Name) })
	watcher.reloadConfig()

	if len(names) != 0 {
		t.Fatal("delivery should wait for the scheduler")
	}
	manual.RunAll()
	if len(names) != 1 || names[0] != "scheduled" {
		t.Fatalf("unexpected deliveries: %v", names)
	}
}

func TestWatcher_HotReloadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "app:\n  name: one\n")

	watcher, err := NewWatcher(configPath, NewLoader(), WithInitial(DefaultConfig()))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	var seen []HotReloadableConfig
	watcher.HotReloadable().ListenFunc(func(h HotReloadableConfig) { seen = append(seen, h) })

	// Only the app name changed.
	watcher.reloadConfig()
	if len(seen) != 1 {
		t.Fatalf("expected 1 hot-reloadable emission, got %d", len(seen))
	}

	writeConfig(t, configPath, "log:\n  level: debug\n")
	watcher.reloadConfig()
	if len(seen) != 2 || seen[1].LogLevel != "debug" {
		t.Fatalf("expected log level change to be emitted, got %v", seen)
	}
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("detects file changes", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "reactive.yaml")
		writeConfig(t, configPath, "log:\n  level: info\n")

		watcher, err := NewWatcher(configPath, NewLoader(), WithDebounce(50*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		received := make(chan *Config, 4)
		watcher.OnChange(func(cfg *Config) { received <- cfg })

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go func() { _ = watcher.Watch(ctx) }()

		// Wait for watcher to start
		time.Sleep(100 * time.Millisecond)
		writeConfig(t, configPath, "log:\n  level: debug\n")

		select {
		case cfg := <-received:
			if cfg.Log.Level != "debug" {
				t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
			}
		case <-ctx.Done():
			t.Fatal("expected a reload after the config changed")
		}
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "reactive.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		watchErr := make(chan error, 1)
		go func() {
			watchErr <- watcher.Watch(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-watchErr:
			if err != context.Canceled {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("watcher did not stop on context cancel")
		}
	})

	t.Run("prevents double watch", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "reactive.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		go func() { _ = watcher.Watch(context.Background()) }()
		time.Sleep(100 * time.Millisecond)

		if err := watcher.Watch(context.Background()); err == nil {
			t.Error("expected error when starting double watch")
		}
	})
}

func TestWatcher_Stop(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "reactive.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = watcher.Watch(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)
	if !watcher.IsRunning() {
		t.Error("expected watcher to be running")
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	wg.Wait()

	if watcher.IsRunning() {
		t.Error("expected watcher to not be running after Stop")
	}
}

func TestWatcher_NonExistentFile(t *testing.T) {
	watcher, err := NewWatcher("/nonexistent/reactive.yaml", NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := watcher.Watch(ctx); err == nil {
		t.Error("expected error when watching non-existent file")
	}
}

func TestHotReloadableConfig_Changed(t *testing.T) {
	h1 := ExtractHotReloadable(DefaultConfig())

	h2 := h1
	if h1.Changed(h2) {
		t.Error("expected no change detected")
	}

	h2.LogLevel = "debug"
	if !h1.Changed(h2) {
		t.Error("expected change detected for log level")
	}

	h3 := h1
	h3.RateLimit.Burst = 99
	if !h1.Changed(h3) {
		t.Error("expected change detected for rate limit burst")
	}
}

func TestSchedulers(t *testing.T) {
	cfg := DefaultConfig().Schedulers
	cfg.IO.Workers = 2
	cfg.Computation.Workers = 1

	s := NewSchedulers(cfg)
	defer s.Stop()

	if s.ApplyRateLimit(cfg.RateLimit) {
		t.Error("expected ApplyRateLimit to report false without rate limiting")
	}

	done := make(chan struct{}, 2)
	s.IO.Schedule(func() { done <- struct{}{} })
	s.Computation.Schedule(func() { done <- struct{}{} })
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("scheduled action did not run")
		}
	}
}

func TestSchedulers_RateLimited(t *testing.T) {
	cfg := DefaultConfig().Schedulers
	cfg.IO.Workers = 1
	cfg.Computation.Workers = 1
	cfg.RateLimit = RateLimitConfig{Enabled: true, EventsPerSecond: 1000, Burst: 1}

	s := NewSchedulers(cfg)
	defer s.Stop()

	if _, ok := s.IO.(*scheduler.RateLimited); !ok {
		t.Fatalf("expected a rate limited IO scheduler, got %T", s.IO)
	}
	if !s.ApplyRateLimit(RateLimitConfig{EventsPerSecond: 10, Burst: 3}) {
		t.Fatal("expected ApplyRateLimit to update the limiter")
	}
	if s.limiter.Burst() != 3 || float64(s.limiter.Limit()) != 10 {
		t.Errorf("limiter not updated: limit=%v burst=%d", s.limiter.Limit(), s.limiter.Burst())
	}
}
