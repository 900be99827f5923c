package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "COREBUS_"
	configEnvVar = "COREBUS_CONFIG_PATH"
)

// Loader loads configuration from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// LoaderOption customises a Loader before Load is called.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the list of candidate config file paths
// searched in order when COREBUS_CONFIG_PATH is unset.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.configPaths = paths }
}

// WithEnvPrefix overrides the environment variable prefix (default
// "COREBUS_").
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// NewLoader returns a Loader with default search paths and env prefix.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"bus.yaml",
			"config/bus.yaml",
			"/etc/corebus/bus.yaml",
		},
		envPrefix: envPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads defaults, then an optional config file, then environment
// overrides, unmarshals into a Config, and validates it.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("corebus config: defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// A config file is optional; every setting has a default.
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("corebus config: env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("corebus config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		"bus.schema.transport.name": "",
	}
	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

func (l *Loader) loadConfigFile() error {
	if path := os.Getenv(configEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return l.k.Load(file.Provider(path), yaml.Parser())
		}
	}
	for _, path := range l.configPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return l.k.Load(file.Provider(abs), yaml.Parser())
		}
	}
	return fmt.Errorf("no config file found in %v", l.configPaths)
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// COREBUS_BUS_SCHEMA_TRANSPORT_NAME -> bus.schema.transport.name
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, l.envPrefix)),
			"_", ".",
		)
	}), nil)
}

// Load loads configuration with default search paths and env prefix.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// MustLoad loads configuration or panics. Intended for main() wiring
// where a missing/invalid config is a fatal startup error.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("corebus: failed to load config: %v", err))
	}
	return cfg
}
