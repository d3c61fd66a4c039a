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

// Package serve implements the serve command, which runs hostlink as a
// standalone host: it connects, answers the remote side's requests on a
// fixed tick and exits when the connection ends or a signal arrives.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/hostlink/internal/commands/shared"
	"github.com/tombee/hostlink/internal/config"
	"github.com/tombee/hostlink/internal/handlers"
	"github.com/tombee/hostlink/internal/log"
	"github.com/tombee/hostlink/internal/registry"
	"github.com/tombee/hostlink/internal/transport"
)

// ErrConnectionEnded is returned when the connection fails or closes while
// serving. hostlink does not reconnect.
var ErrConnectionEnded = errors.New("connection ended")

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect and serve host methods until interrupted",
		Long: `Connect to the remote service and answer its requests.

The built-in methods are execute_george, which runs its script through the
configured shell, and ping. Requests are processed every host.poll_interval.
When metrics.addr is set, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if err := shared.RequireURL(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return Run(ctx, cfg, shared.NewLogger(cfg))
		},
	}
}

// Run serves until ctx is done or the connection ends.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := registry.New()
	executor := &handlers.ShellExecutor{
		Shell:      cfg.Executor.Shell,
		WorkingDir: cfg.Executor.WorkingDir,
		Timeout:    cfg.Executor.Timeout,
	}
	if err := handlers.Register(reg, executor, logger); err != nil {
		return err
	}

	link, err := shared.OpenLink(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := link.Close(context.Background()); err != nil {
			logger.Warn("close failed", log.Error(err))
		}
	}()

	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, link.Provider.Handler(), logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := link.Connect(); err != nil {
		return err
	}
	logger.Info("serving host methods",
		"url", cfg.Transport.URL,
		"methods", reg.Methods(),
		"poll_interval", cfg.Host.PollInterval)

	ticker := time.NewTicker(cfg.Host.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}

		link.ProcessRequests(ctx)

		switch link.Status() {
		case transport.StatusFailed, transport.StatusClosed:
			info := link.Info()
			return fmt.Errorf("%w: %s", ErrConnectionEnded, info.Reason)
		}
	}
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", log.Error(err))
		}
	}()

	return srv, nil
}
