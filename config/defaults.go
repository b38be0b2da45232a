package config

import "time"

// DefaultConfig returns a Config with sensible defaults. NodeName is left empty here; the
// loader fills it from HOSTNAME when the environment doesn't override it.
func DefaultConfig() *Config {
	return &Config{
		Clustered:            true,
		LogLevel:             "info",
		LogFormat:            "json",
		MetricsPort:          9091,
		PartitionCount:       100,
		ReconcileConcurrency: 1,
		TickInterval:         20 * time.Second,
	}
}
