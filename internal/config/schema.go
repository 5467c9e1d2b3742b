// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for memoryd.
package config

import "gopkg.in/yaml.v3"

// Service is the name under which the loaded *Config is published in the
// application service registry.
const Service = "config"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir is the root for persistent data such as the baseline
	// database. Defaults to ./data.
	DataDir string `yaml:"data_dir,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory", "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Telemetry configures logging and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig configures the process-wide logger and tracer.
type TelemetryConfig struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json. Defaults to text.
	LogFormat string `yaml:"log_format"`

	// OTLPEndpoint enables OTLP/HTTP trace export when set,
	// e.g. "localhost:4318".
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// ServiceName is reported on exported spans. Defaults to memoryd.
	ServiceName string `yaml:"service_name"`
}

// Defaults fills zero-valued fields.
func (c *Config) Defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
	if c.Telemetry.LogFormat == "" {
		c.Telemetry.LogFormat = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "memoryd"
	}
}
