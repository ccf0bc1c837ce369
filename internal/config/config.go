// Package config provides configuration loading for specd.
//
// Configuration comes from a YAML file overridden by SPECD_*
// environment variables, with hardcoded defaults underneath.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete specd configuration.
type Config struct {
	Server    ServerConfig
	HTTP      HTTPConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Events    EventsConfig
	Specs     SpecsConfig
	Store     StoreConfig
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	Name            string        `koanf:"name"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig holds the HTTP API settings.
type HTTPConfig struct {
	Enabled   bool    `koanf:"enabled"`
	Port      int     `koanf:"port"`
	RateLimit float64 `koanf:"rate_limit"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// EventsConfig holds event publishing settings. An empty NATS URL
// disables publishing.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
}

// SpecsConfig holds the specs directory settings. An empty directory
// disables the document store and the watcher.
type SpecsConfig struct {
	Dir   string `koanf:"dir"`
	Watch bool   `koanf:"watch"`
}

// StoreConfig holds workflow persistence settings.
type StoreConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "specd"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9190
	}
	if cfg.HTTP.RateLimit == 0 {
		cfg.HTTP.RateLimit = 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "specd"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.HTTP.Enabled {
		if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
			return fmt.Errorf("invalid http port: %d (must be 1-65535)", c.HTTP.Port)
		}
		if c.HTTP.RateLimit <= 0 {
			return errors.New("http rate limit must be positive")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("invalid telemetry protocol: %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("invalid telemetry sample rate: %v (must be 0-1)", c.Telemetry.SampleRate)
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store path required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %q (memory or sqlite)", c.Store.Backend)
	}

	return nil
}
