// Package config loads and validates the anvil server configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is the address the web server binds when none is configured.
	DefaultListen = ":5000"

	// DefaultDatabase is the sqlite database file.
	DefaultDatabase = "anvil.db"

	// DefaultScriptsDir holds the external hypervisor scripts.
	DefaultScriptsDir = "scripts"

	// DefaultCommandTimeout bounds a single external script invocation.
	DefaultCommandTimeout = 120 * time.Second

	// DefaultProbeTimeout bounds each interpreter version probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultSubjectPrefix is prepended to every published event subject.
	DefaultSubjectPrefix = "anvil"
)

// Config represents the complete server configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	Database       string        `yaml:"database"`
	ScriptsDir     string        `yaml:"scripts_dir"`
	Interpreters   []string      `yaml:"interpreters,omitempty"` // Probed in order; first to answer --version wins
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout,omitempty"`
	SessionSecret  string        `yaml:"session_secret,omitempty"`
	LogLevel       string        `yaml:"log_level,omitempty"`
	LogFormat      string        `yaml:"log_format,omitempty"` // text or json

	// RecordUserOnProvisionFailure keeps the user row written by the create
	// workflow even when manage_users.sh fails. Pointer to distinguish unset vs false.
	RecordUserOnProvisionFailure *bool `yaml:"record_user_on_provision_failure,omitempty"`

	NATS    NATSConfig    `yaml:"nats,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// NATSConfig configures lifecycle event publishing. Publishing is disabled
// when URL is empty.
type NATSConfig struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// TracingConfig configures the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// LoadFromFile reads, normalizes and validates a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML parses YAML bytes into a normalized, validated Config.
func LoadFromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	c.Normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &c, nil
}

// Normalize fills unset fields with their defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = DefaultScriptsDir
	}
	if len(c.Interpreters) == 0 {
		c.Interpreters = []string{"bash"}
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.RecordUserOnProvisionFailure == nil {
		record := true
		c.RecordUserOnProvisionFailure = &record
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
}

// Validate checks the configuration for errors.
// Does not check that the scripts directory exists; scripts are resolved per call.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen must be host:port, got %q: %w", c.Listen, err)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.ScriptsDir == "" {
		return fmt.Errorf("scripts_dir is required")
	}
	for i, interp := range c.Interpreters {
		if interp == "" {
			return fmt.Errorf("interpreters[%d] is empty", i)
		}
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must be > 0, got %s", c.CommandTimeout)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must be > 0, got %s", c.ProbeTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ScriptsPath returns the absolute scripts directory.
func (c *Config) ScriptsPath() (string, error) {
	abs, err := filepath.Abs(c.ScriptsDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve scripts_dir %q: %w", c.ScriptsDir, err)
	}
	return abs, nil
}

// RecordUserOnFailure reports the effective provisioning-failure policy.
func (c *Config) RecordUserOnFailure() bool {
	return c.RecordUserOnProvisionFailure == nil || *c.RecordUserOnProvisionFailure
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}
