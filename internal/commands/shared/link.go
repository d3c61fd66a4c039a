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

package shared

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/hostlink/internal/communicator"
	"github.com/tombee/hostlink/internal/config"
	"github.com/tombee/hostlink/internal/log"
	"github.com/tombee/hostlink/internal/metrics"
	"github.com/tombee/hostlink/internal/registry"
	"github.com/tombee/hostlink/internal/tracing"
	"github.com/tombee/hostlink/internal/transport"
	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

// LoadConfig loads the config named by --config, or the default config file
// when it exists.
func LoadConfig() (*config.Config, error) {
	path := GetConfigPath()
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. --verbose forces debug level.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Log.Level
	if GetVerbose() && level != "trace" {
		level = "debug"
	}
	return log.New(&log.Config{
		Level:     level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
}

// RequireURL fails when the link is disabled by configuration.
func RequireURL(cfg *config.Config) error {
	if cfg.Transport.URL != "" {
		return nil
	}
	return NewConfigError("link is disabled", &hostlinkerrors.ValidationError{
		Field:      "transport.url",
		Message:    "no WebSocket URL configured",
		Suggestion: "set WEBSOCKET_URL or transport.url in the config file",
	})
}

// Link bundles a Communicator with the telemetry providers it reports to.
type Link struct {
	*communicator.Communicator

	Provider *metrics.Provider
	logger   *slog.Logger
}

// OpenLink builds a Communicator from cfg. It does not connect.
func OpenLink(cfg *config.Config, logger *slog.Logger, reg *registry.Registry) (*Link, error) {
	exporter, err := tracing.NewExporter(context.Background(), cfg.Tracing, nil)
	if err != nil {
		return nil, NewConfigError("failed to create trace exporter", err)
	}

	provider, err := metrics.NewProvider("hostlink", version, tracing.ProviderOptions(exporter)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	c := communicator.New(communicator.Options{
		URL:              cfg.Transport.URL,
		Registry:         reg,
		Logger:           logger,
		Metrics:          provider.Collector(),
		Tracer:           provider.Tracer("hostlink"),
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		CloseTimeout:     cfg.Transport.CloseTimeout,
	})

	return &Link{Communicator: c, Provider: provider, logger: logger}, nil
}

// Close closes the connection and shuts the providers down.
func (l *Link) Close(ctx context.Context) error {
	closeErr := l.CloseConnection()
	if err := l.Provider.Shutdown(ctx); err != nil {
		l.logger.Debug("telemetry shutdown failed", log.Error(err))
	}
	return closeErr
}

// WaitOpen blocks until the connection is open. It fails as soon as the
// handshake fails, the connection closes, or timeout elapses.
func WaitOpen(ctx context.Context, c *communicator.Communicator, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		switch c.Status() {
		case transport.StatusOpen:
			return nil
		case transport.StatusFailed, transport.StatusClosed:
			return fmt.Errorf("connection to %s not established: %s", c.Info().URI, c.Info().Reason)
		}

		select {
		case <-ctx.Done():
			return &hostlinkerrors.TimeoutError{
				Operation: "websocket handshake",
				Duration:  timeout,
				Cause:     ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}
