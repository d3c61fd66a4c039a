// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads hostlink's configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// Config is the complete hostlink configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Host      HostConfig      `yaml:"host"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig configures the WebSocket link.
type TransportConfig struct {
	// URL is the ws:// or wss:// address of the remote service. Empty
	// disables the link.
	URL string `yaml:"url"`

	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// CloseTimeout bounds the wait for the peer's close echo on shutdown.
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// HostConfig configures the host tick.
type HostConfig struct {
	// PollInterval is how often inbound requests are processed.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ExecutorConfig configures the shell script executor.
type ExecutorConfig struct {
	Shell      string        `yaml:"shell"`
	WorkingDir string        `yaml:"working_dir"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is one of "", "console", "otlp" (gRPC) or "otlp-http".
	// Empty keeps spans in process.
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address for the OTLP exporters.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			HandshakeTimeout: 10 * time.Second,
			CloseTimeout:     5 * time.Second,
		},
		Host: HostConfig{
			PollInterval: 100 * time.Millisecond,
		},
		Executor: ExecutorConfig{
			Shell:   "sh",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at configPath if
// one is given, then the environment. The result is validated.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &hostlinkerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, &hostlinkerrors.ConfigError{
			Key:    "environment",
			Reason: "invalid environment override",
			Cause:  err,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &hostlinkerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return hostlinkerrors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return hostlinkerrors.Wrap(err, "failed to parse YAML")
	}

	return nil
}

// loadFromEnv applies environment overrides. WEBSOCKET_URL is applied even
// when set to the empty string, which disables the link.
func (c *Config) loadFromEnv() error {
	if val, ok := os.LookupEnv("WEBSOCKET_URL"); ok {
		c.Transport.URL = strings.TrimSpace(val)
	}

	durations := []struct {
		env    string
		target *time.Duration
	}{
		{"HOSTLINK_HANDSHAKE_TIMEOUT", &c.Transport.HandshakeTimeout},
		{"HOSTLINK_CLOSE_TIMEOUT", &c.Transport.CloseTimeout},
		{"HOSTLINK_POLL_INTERVAL", &c.Host.PollInterval},
		{"HOSTLINK_EXECUTOR_TIMEOUT", &c.Executor.Timeout},
	}
	for _, d := range durations {
		val := os.Getenv(d.env)
		if val == "" {
			continue
		}
		duration, err := time.ParseDuration(val)
		if err != nil {
			return hostlinkerrors.Wrap(err, d.env)
		}
		*d.target = duration
	}

	if val := os.Getenv("HOSTLINK_SHELL"); val != "" {
		c.Executor.Shell = val
	}
	if val := os.Getenv("HOSTLINK_WORKING_DIR"); val != "" {
		c.Executor.WorkingDir = val
	}
	if val := os.Getenv("HOSTLINK_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}

	if val := os.Getenv("HOSTLINK_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("HOSTLINK_TRACE_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("HOSTLINK_TRACE_INSECURE"); val != "" {
		c.Tracing.Insecure = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	return nil
}

// Validate checks that the configuration is usable. The transport URL is
// not checked here; a URL that cannot be dialed disables the link when it
// connects.
func (c *Config) Validate() error {
	var errs []string

	if c.Transport.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("transport.handshake_timeout must be positive, got %v", c.Transport.HandshakeTimeout))
	}
	if c.Transport.CloseTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("transport.close_timeout must be positive, got %v", c.Transport.CloseTimeout))
	}
	if c.Host.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("host.poll_interval must be positive, got %v", c.Host.PollInterval))
	}
	if c.Executor.Shell == "" {
		errs = append(errs, "executor.shell must not be empty")
	}
	if c.Executor.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("executor.timeout must be positive, got %v", c.Executor.Timeout))
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Sprintf("metrics.addr must be host:port, got %q", c.Metrics.Addr))
		}
	}

	switch c.Tracing.Exporter {
	case "", "console":
	case "otlp", "otlp-http":
		if c.Tracing.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("tracing.endpoint is required for exporter %q", c.Tracing.Exporter))
		}
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [console, otlp, otlp-http], got %q", c.Tracing.Exporter))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
