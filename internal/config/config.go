// Package config provides configuration management for the call trace
// service: the process-wide routing configuration store used by the
// instrumentation library, plus viper-loaded process settings for the
// binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration for the call trace binaries.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sink contains the receiving sink server settings.
	Sink SinkConfig `mapstructure:"sink"`
	// Delivery contains outbound record delivery settings.
	Delivery DeliveryConfig `mapstructure:"delivery"`
	// Routing contains the initial routing configuration applied at startup.
	Routing FileRouting `mapstructure:"routing"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Port is the metrics server port.
	Port int `mapstructure:"port"`
}

// SinkConfig holds the receiving sink server configuration.
type SinkConfig struct {
	// Host is the address to bind the sink server to.
	Host string `mapstructure:"host"`
	// Port is the sink server port.
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DeliveryConfig holds outbound delivery settings for remote sinks.
type DeliveryConfig struct {
	// Timeout is the per-request timeout for record delivery.
	Timeout time.Duration `mapstructure:"timeout"`
	// RatePerSecond caps outbound deliveries; zero disables the limiter.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	// Burst is the limiter burst size when the limiter is enabled.
	Burst int `mapstructure:"burst"`
}

// FileRouting mirrors Partial for file/env loading. It exists so the
// initial routing can be expressed in config.yaml without pointer fields.
type FileRouting struct {
	// DevMode disables remote delivery and writes records to local output.
	DevMode bool `mapstructure:"dev_mode"`
	// LogMode selects single- or multiple-endpoint routing.
	LogMode string `mapstructure:"log_mode"`
	// Endpoint is the delivery target in single mode.
	Endpoint string `mapstructure:"endpoint"`
	// EndpointParams are the per-level delivery targets in multiple mode.
	EndpointParams []EndpointParam `mapstructure:"endpoint_params"`
}

// Partial converts the file routing into a routing update suitable for
// Store.Set.
func (r FileRouting) Partial() Partial {
	devMode := r.DevMode
	logMode := r.LogMode
	p := Partial{
		DevMode:        &devMode,
		LogMode:        &logMode,
		EndpointParams: r.EndpointParams,
	}
	if r.Endpoint != "" {
		endpoint := r.Endpoint
		p.Endpoint = &endpoint
	}
	return p
}

// SinkAddress returns the sink server bind address.
func (c *Config) SinkAddress() string {
	return fmt.Sprintf("%s:%d", c.Sink.Host, c.Sink.Port)
}

// MetricsAddress returns the metrics server bind address.
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Sink.Host, c.Metrics.Port)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CALLTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/call-trace-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9481)

	// Sink server defaults
	v.SetDefault("sink.host", "0.0.0.0")
	v.SetDefault("sink.port", 9480)
	v.SetDefault("sink.read_timeout", "15s")
	v.SetDefault("sink.write_timeout", "15s")
	v.SetDefault("sink.shutdown_timeout", "30s")

	// Delivery defaults
	v.SetDefault("delivery.timeout", "5s")
	v.SetDefault("delivery.rate_per_second", 0.0)
	v.SetDefault("delivery.burst", 1)

	// Routing defaults match the built-in routing configuration.
	v.SetDefault("routing.dev_mode", true)
	v.SetDefault("routing.log_mode", LogModeSingle)
	v.SetDefault("routing.endpoint", DefaultEndpoint)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Sink.Port <= 0 || c.Sink.Port > 65535 {
		return fmt.Errorf("invalid sink port: %d", c.Sink.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive")
	}
	if c.Delivery.RatePerSecond < 0 {
		return fmt.Errorf("delivery rate_per_second must not be negative")
	}
	if c.Delivery.RatePerSecond > 0 && c.Delivery.Burst <= 0 {
		return fmt.Errorf("delivery burst must be positive when rate limiting is enabled")
	}

	if c.Routing.LogMode != LogModeSingle && c.Routing.LogMode != LogModeMultiple {
		return fmt.Errorf("invalid routing log_mode: %s", c.Routing.LogMode)
	}

	return nil
}
