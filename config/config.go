// Package config loads syncfleet's configuration from the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the process-wide configuration, read once at startup and passed by reference to
// every component that needs it.
type Config struct {
	// GoogleOAuthClientID is the OAuth client id used to exchange refresh tokens for Google
	// Calendar access tokens.
	GoogleOAuthClientID string `mapstructure:"google_oauth_client_id"`

	// GoogleOAuthClientSecret is the matching OAuth client secret.
	GoogleOAuthClientSecret string `mapstructure:"google_oauth_client_secret"`

	// EtcdURL is the coordination-store endpoint. Required when Clustered is true; the core
	// refuses to run clustered without it.
	EtcdURL string `mapstructure:"etcd_url"`

	// Clustered switches partition ownership coordination on or off. Default true.
	Clustered bool `mapstructure:"clustered"`

	// NodeName identifies this node in the coordination store's membership list. Defaults to
	// the host's HOSTNAME when unset.
	NodeName string `mapstructure:"node_name" validate:"required"`

	// LogLevel is the minimum level logged (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat is the log encoding (json, text).
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`

	// TracingEndpoint is the OpenTelemetry collector endpoint. Empty disables tracing export.
	TracingEndpoint string `mapstructure:"tracing_endpoint"`

	// MetricsPort is the port the Prometheus metrics handler listens on.
	MetricsPort int `mapstructure:"metrics_port" validate:"min=1,max=65535"`

	// PartitionCount is the fixed number of sync partitions; out of W nodes, the node at index i
	// owns every partition p with p mod W == i.
	PartitionCount int `mapstructure:"partition_count" validate:"min=1"`

	// ReconcileConcurrency bounds how many reconciliations run at once per node.
	ReconcileConcurrency int `mapstructure:"reconcile_concurrency" validate:"min=1"`

	// TickInterval is the pause between sync pipeline ticks.
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"min=1"`
}

// Validate checks Config against its struct tags plus the clustered/etcd_url cross-field rule
// that validator tags alone can't express.
func (c *Config) Validate() error {
	if c.Clustered && c.EtcdURL == "" {
		return &FatalError{Field: "etcd_url", Message: "required when clustered is true"}
	}
	return ValidateWithDetails(c)
}

// FatalError reports a misconfiguration that should abort startup.
type FatalError struct {
	Field   string
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// String returns a representation safe to log: OAuth credentials are never included.
func (c *Config) String() string {
	return fmt.Sprintf("Config{NodeName: %s, Clustered: %t, PartitionCount: %d, ReconcileConcurrency: %d}",
		c.NodeName, c.Clustered, c.PartitionCount, c.ReconcileConcurrency)
}
