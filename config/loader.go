package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "APP_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader loads configuration from the environment only: no files, no flags, no CLI arguments.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load reads defaults, then APP_-prefixed environment variables, falling back to HOSTNAME for
// node_name when unset, and validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.NodeName == "" {
		cfg.NodeName = os.Getenv("HOSTNAME")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults seeds the loader with DefaultConfig's values.
func (l *Loader) loadDefaults() error {
	defaults := DefaultConfig()
	return l.k.Load(confmap.Provider(map[string]interface{}{
		"clustered":             defaults.Clustered,
		"log_level":             defaults.LogLevel,
		"log_format":            defaults.LogFormat,
		"metrics_port":          defaults.MetricsPort,
		"partition_count":       defaults.PartitionCount,
		"reconcile_concurrency": defaults.ReconcileConcurrency,
		"tick_interval":         defaults.TickInterval,
	}, Delimiter), nil)
}

// loadEnv loads APP_-prefixed environment variables, transforming e.g. APP_ETCD_URL into
// etcd_url.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
}

// Load is a convenience function equivalent to NewLoader().Load().
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadOrDie loads configuration and exits non-zero on failure.
func LoadOrDie() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}
