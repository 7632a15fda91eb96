package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/docstore/codec"
	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/pkg/retry"
	"github.com/c360/docstore/pkg/tlsutil"
)

// Backend names the remote a document store is opened against.
type Backend string

// Supported backends
const (
	BackendNATS   Backend = "nats"
	BackendEtcd   Backend = "etcd"
	BackendMemory Backend = "memory"
)

// Config is the complete configuration of a docstore process.
type Config struct {
	Backend               Backend       `mapstructure:"backend" json:"backend" yaml:"backend"`
	Bucket                string        `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	DefaultFormat         string        `mapstructure:"default_format" json:"default_format" yaml:"default_format"`
	OperationTimeout      time.Duration `mapstructure:"operation_timeout" json:"operation_timeout" yaml:"operation_timeout"`
	CreateOnlyOnZeroToken bool          `mapstructure:"create_only_on_zero_token" json:"create_only_on_zero_token" yaml:"create_only_on_zero_token"`

	Retry   RetryConfig   `mapstructure:"retry" json:"retry" yaml:"retry"`
	NATS    NATSConfig    `mapstructure:"nats" json:"nats" yaml:"nats"`
	Etcd    EtcdConfig    `mapstructure:"etcd" json:"etcd" yaml:"etcd"`
	Log     LogConfig     `mapstructure:"log" json:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// RetryConfig is the retry schedule for transient remote faults.
// MaxAttempts counts every attempt including the first.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`
	Jitter       bool          `mapstructure:"jitter" json:"jitter" yaml:"jitter"`
}

// NATSConfig defines NATS connection and bucket settings
type NATSConfig struct {
	URL      string        `mapstructure:"url" json:"url" yaml:"url"`
	Username string        `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `mapstructure:"password" json:"-" yaml:"-"`
	Token    string        `mapstructure:"token" json:"-" yaml:"-"`
	Name     string        `mapstructure:"name" json:"name,omitempty" yaml:"name,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	History  int           `mapstructure:"history" json:"history" yaml:"history"`   // revisions kept per key
	Replicas int           `mapstructure:"replicas" json:"replicas" yaml:"replicas"` // bucket replication factor

	TLS tlsutil.ClientConfig `mapstructure:"tls" json:"tls" yaml:"tls"`
}

// EtcdConfig defines etcd connection settings
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints" json:"endpoints" yaml:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	Username    string        `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password    string        `mapstructure:"password" json:"-" yaml:"-"`
	Prefix      string        `mapstructure:"prefix" json:"prefix" yaml:"prefix"`

	TLS tlsutil.ClientConfig `mapstructure:"tls" json:"tls" yaml:"tls"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// MetricsConfig configures the Prometheus exposition server
type MetricsConfig struct {
	Port int    `mapstructure:"port" json:"port" yaml:"port"`
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Backend:          BackendNATS,
		Bucket:           "documents",
		DefaultFormat:    codec.FormatBinary.String(),
		OperationTimeout: 5 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			Name:     "docstore",
			Timeout:  5 * time.Second,
			History:  1,
			Replicas: 1,
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
			Prefix:      "/docstore/",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Validate checks the configuration and normalizes the backend and format names
func (c *Config) Validate() error {
	c.Backend = Backend(strings.ToLower(string(c.Backend)))
	switch c.Backend {
	case BackendNATS, BackendEtcd, BackendMemory:
	default:
		return invalid(fmt.Sprintf("backend %q is not one of nats, etcd, memory", c.Backend))
	}

	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "bucket is required")
	}

	if _, err := c.Format(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "default_format")
	}

	if c.OperationTimeout < 0 {
		return invalid("operation_timeout cannot be negative")
	}

	if err := c.Retry.validate(); err != nil {
		return err
	}

	switch c.Backend {
	case BackendNATS:
		if c.NATS.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url is required")
		}
		if c.NATS.History < 1 || c.NATS.History > 64 {
			return invalid(fmt.Sprintf("nats.history %d must be between 1 and 64", c.NATS.History))
		}
		if c.NATS.Replicas < 1 || c.NATS.Replicas > 5 {
			return invalid(fmt.Sprintf("nats.replicas %d must be between 1 and 5", c.NATS.Replicas))
		}
		if err := c.NATS.TLS.Validate(); err != nil {
			return err
		}
	case BackendEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "etcd.endpoints is required")
		}
		if c.Etcd.DialTimeout < 0 {
			return invalid("etcd.dial_timeout cannot be negative")
		}
		if err := c.Etcd.TLS.Validate(); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	return nil
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1")
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		return invalid("retry delays cannot be negative")
	}
	if r.MaxDelay > 0 && r.MaxDelay < r.InitialDelay {
		return invalid("retry.max_delay must be >= retry.initial_delay")
	}
	return nil
}

func invalid(action string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", action)
}

// Format parses DefaultFormat
func (c *Config) Format() (codec.Format, error) {
	return codec.ParseFormat(c.DefaultFormat)
}

// RetryConfig converts the retry section to the retry framework's Config.
// The document client installs its own classifier.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   2.0,
		AddJitter:    c.Retry.Jitter,
	}
}
