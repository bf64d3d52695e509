package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "REACTIVE_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader handles configuration loading from various sources.
type Loader struct {
	mu sync.RWMutex
	k  *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New(Delimiter),
	}
}

// Load loads configuration from all sources with the following priority:
// 1. Overrides (highest)
// 2. Environment variables
// 3. Configuration file
// 4. Defaults (lowest)
//
// Every call starts from a clean slate, so keys removed from the file since
// the previous load fall back to their defaults.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(Delimiter)
	defaults := structToMap(DefaultConfig(), "")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults, Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load from file if specified
	if configPath != "" {
		if err := loadFile(k, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		loadDefaultFiles(k)
	}

	// 3. Load from environment variables
	if err := k.Load(env.Provider(EnvPrefix, Delimiter, envKeyMapper(defaults)), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Apply overrides (merge, not replace)
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return k.Load(file.Provider(path), parser)
}

// loadDefaultFiles loads the first config file found in the standard locations.
func loadDefaultFiles(k *koanf.Koanf) {
	candidates := []string{
		"reactive.yaml",
		"reactive.yml",
		"reactive.json",
		"configs/reactive.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = loadFile(k, path)
			return
		}
	}
}

// envKeyMapper maps REACTIVE_SCHEDULERS_RATE_LIMIT_BURST to
// schedulers.rate_limit.burst. Underscores are ambiguous, so names are
// matched against the known keys first; unknown names split on every
// underscore.
func envKeyMapper(known map[string]interface{}) func(string) string {
	byEnv := make(map[string]string, len(known))
	for key := range known {
		byEnv[strings.ReplaceAll(key, Delimiter, "_")] = key
	}
	return func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := byEnv[name]; ok {
			return key
		}
		return strings.ReplaceAll(name, "_", Delimiter)
	}
}

// Get returns a configuration value by key from the last successful load.
func (l *Loader) Get(key string) interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Get(key)
}

// GetString returns a string configuration value.
func (l *Loader) GetString(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.String(key)
}

// GetInt returns an int configuration value.
func (l *Loader) GetInt(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Int(key)
}

// GetBool returns a bool configuration value.
func (l *Loader) GetBool(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Bool(key)
}

// Print prints the loaded configuration for debugging.
func (l *Loader) Print() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Sprint()
}

// structToMap recursively converts a struct to a flat map with dot-separated
// keys taken from the mapstructure tags.
func structToMap(v interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	val := reflect.ValueOf(v)

	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}

		fullKey := key
		if prefix != "" {
			fullKey = prefix + Delimiter + key
		}

		switch fieldVal.Kind() {
		case reflect.Struct:
			for k, v := range structToMap(fieldVal.Interface(), fullKey) {
				result[k] = v
			}
		case reflect.Map:
			// Empty maps would shadow keys loaded later from files.
			if fieldVal.Len() > 0 {
				result[fullKey] = fieldVal.Interface()
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			result[fullKey] = fieldVal.Int()
		case reflect.Float32, reflect.Float64:
			result[fullKey] = fieldVal.Float()
		case reflect.Bool:
			result[fullKey] = fieldVal.Bool()
		case reflect.String:
			result[fullKey] = fieldVal.String()
		default:
			result[fullKey] = fieldVal.Interface()
		}
	}

	return result
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie loads configuration and panics on error.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
