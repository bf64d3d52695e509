package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goclaw/reactive/pkg/bus"
	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/logger"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// Watcher monitors the configuration file and publishes every successfully
// reloaded Config on a Bus. New subscribers are replayed the latest Config.
type Watcher struct {
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	loader     *Loader
	configPath string
	debounce   time.Duration
	delivery   scheduler.Scheduler
	configs    *bus.Dispatcher[*Config]
	stopCh     chan struct{}
	stopOnce   sync.Once
	running    bool

	timerMu sync.Mutex
	timer   *time.Timer
}

// WatcherOption is a functional option for Watcher configuration.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce duration for file change events.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithInitial seeds the watcher with the config loaded at startup.
func WithInitial(cfg *Config) WatcherOption {
	return func(w *Watcher) {
		w.configs = bus.NewDispatcherWith(cfg)
	}
}

// WithDeliveryScheduler delivers changes to OnChange subscribers on s
// instead of the goroutine that reloaded the file.
func WithDeliveryScheduler(s scheduler.Scheduler) WatcherOption {
	return func(w *Watcher) {
		w.delivery = s
	}
}

// NewWatcher creates a new configuration file watcher.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for watching")
	}

	fswatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:    fswatcher,
		loader:     loader,
		configPath: configPath,
		debounce:   500 * time.Millisecond,
		stopCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.configs == nil {
		w.configs = bus.NewDispatcher[*Config]()
	}

	return w, nil
}

// Watch starts monitoring the configuration file for changes.
// It blocks until the context is cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.stopTimer()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.watcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.configPath, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "path", w.configPath, "error", err)
		}
	}
}

// scheduleReload restarts the debounce timer.
func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reloadConfig)
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// reloadConfig reloads the configuration and publishes it.
func (w *Watcher) reloadConfig() {
	cfg, err := w.loader.Load(w.configPath, nil)
	if err != nil {
		logger.Error("failed to reload config", "path", w.configPath, "error", err)
		return
	}

	// A subscriber panic terminates the endless bus; keep the watcher alive.
	if err := fault.CatchAll(func() { w.configs.OnEvent(cfg) }); err != nil {
		logger.Error("config subscriber failed", "path", w.configPath, "error", err)
		return
	}
	logger.Info("config reloaded", "path", w.configPath, "config", cfg.String())
}

// Changes returns the bus of reloaded configurations.
func (w *Watcher) Changes() *bus.Bus[*Config] {
	if w.delivery != nil {
		return bus.ObserveOn(w.configs.Bus, w.delivery)
	}
	return w.configs.Bus
}

// Current returns the latest published configuration, if any.
func (w *Watcher) Current() (*Config, bool) {
	return w.configs.Value()
}

// OnChange subscribes callback to configuration changes. The latest known
// configuration is replayed immediately.
func (w *Watcher) OnChange(callback func(*Config)) cancel.Cancellable {
	return w.Changes().ListenFunc(callback)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ConfigPath returns the path being watched.
func (w *Watcher) ConfigPath() string {
	return w.configPath
}

// HotReloadableConfig contains configuration values that can be hot-reloaded.
type HotReloadableConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
	RateLimit      RateLimitConfig
}

// ExtractHotReloadable extracts hot-reloadable values from Config.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		MetricsEnabled: cfg.Metrics.Enabled,
		RateLimit:      cfg.Schedulers.RateLimit,
	}
}

// Changed checks if hot-reloadable configuration has changed.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}

// HotReloadable returns a bus of hot-reloadable settings that emits only
// when one of them changed.
func (w *Watcher) HotReloadable() *bus.Bus[HotReloadableConfig] {
	extracted := bus.Map(w.Changes(), func(cfg *Config) (HotReloadableConfig, error) {
		return ExtractHotReloadable(cfg), nil
	})
	return bus.DistinctUntilChanged(extracted)
}
