// Package config provides configuration loading for finplan.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. See LoadWithFile for precedence rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete finplan configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Jobs          JobsConfig          `koanf:"jobs"`
	Projection    ProjectionConfig    `koanf:"projection"`
	Poller        PollerConfig        `koanf:"poller"`
	NATS          NATSConfig          `koanf:"nats"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// JobsConfig holds job runner configuration.
type JobsConfig struct {
	Workers      int           `koanf:"workers"`
	QueueSize    int           `koanf:"queue_size"`
	RetentionTTL time.Duration `koanf:"retention_ttl"` // 0 means 1h, negative keeps terminal jobs until shutdown
	SubmitRate   float64       `koanf:"submit_rate"`  // submissions per second, 0 disables limiting
	SubmitBurst  int           `koanf:"submit_burst"`
}

// ProjectionConfig holds projection engine configuration.
type ProjectionConfig struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// PollerConfig holds client-side job poller configuration.
type PollerConfig struct {
	Interval       time.Duration `koanf:"interval"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ServerURL      string        `koanf:"server_url"`
}

// NATSConfig holds the job event bus connection.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	Token         Secret        `koanf:"token"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
	ServiceName     string `koanf:"service_name"`

	// MetricsInterval overrides the OTLP metric export interval.
	MetricsInterval Duration `koanf:"metrics_interval"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be >= 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("jobs.queue_size must be >= 1, got %d", c.Jobs.QueueSize)
	}
	if c.Jobs.SubmitRate < 0 {
		return fmt.Errorf("jobs.submit_rate cannot be negative")
	}
	if c.Jobs.SubmitRate > 0 && c.Jobs.SubmitBurst < 1 {
		return fmt.Errorf("jobs.submit_burst must be >= 1 when submit_rate is set")
	}

	if c.Projection.Workers < 1 {
		return fmt.Errorf("projection.workers must be >= 1, got %d", c.Projection.Workers)
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("observability.log_format must be 'json' or 'console', got %q", c.Observability.LogFormat)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
