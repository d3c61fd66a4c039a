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

// Package communicator is the host-facing side of the link.
//
// A Communicator owns one transport endpoint, the correlation table for
// outbound calls and the inbound queue. Host code calls CallMethod and
// CallNotification to act as a client and ProcessRequests, on its own
// cadence, to serve the remote side's requests.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/hostlink/internal/inbox"
	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/log"
	"github.com/tombee/hostlink/internal/metrics"
	"github.com/tombee/hostlink/internal/pending"
	"github.com/tombee/hostlink/internal/registry"
	"github.com/tombee/hostlink/internal/transport"
)

// Options configures a Communicator.
type Options struct {
	// URL is the ws:// or wss:// address of the remote service. An empty URL
	// disables the link: every operation becomes a no-op.
	URL string

	// Registry holds the handlers for inbound requests. It is frozen by
	// Connect. If nil, an empty registry is used.
	Registry *registry.Registry

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// Tracer is used for call spans. If nil, the global tracer is used.
	Tracer trace.Tracer

	// Dialer overrides the WebSocket dialer.
	Dialer *websocket.Dialer

	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration

	// CloseTimeout bounds the wait for the peer's close echo.
	CloseTimeout time.Duration

	// Hooks observe connection lifecycle events.
	Hooks transport.Hooks
}

// Communicator is a bidirectional JSON-RPC client over one WebSocket.
type Communicator struct {
	url        string
	registry   *registry.Registry
	logger     *slog.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
	middleware *log.RPCMiddleware

	endpoint *transport.Endpoint
	pending  *pending.Table
	inbox    inbox.Queue

	usable    atomic.Bool
	connected atomic.Bool
	nextID    atomic.Int64
}

// New creates a Communicator. It does not connect.
func New(opts Options) *Communicator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/tombee/hostlink/internal/communicator")
	}

	c := &Communicator{
		url:        opts.URL,
		registry:   opts.Registry,
		logger:     log.WithComponent(opts.Logger, "communicator"),
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		middleware: log.NewRPCMiddleware(log.WithComponent(opts.Logger, "dispatch")),
		pending:    pending.NewTable(),
		inbox:      inbox.NewMemoryQueue(),
	}

	cfg := transport.Config{
		Dialer:           opts.Dialer,
		HandshakeTimeout: opts.HandshakeTimeout,
		CloseTimeout:     opts.CloseTimeout,
		Sink:             sink{c},
		Hooks:            opts.Hooks,
		Logger:           opts.Logger,
	}
	if opts.Metrics != nil {
		cfg.Recorder = opts.Metrics
	}
	c.endpoint = transport.NewEndpoint(cfg)

	c.metrics.ObserveQueueDepth(func() int64 { return int64(c.inbox.Len()) })
	c.metrics.ObserveConnectionStatus(func() int64 { return int64(c.endpoint.Status()) })

	c.usable.Store(opts.URL != "")
	return c
}

// IsUsable reports whether the link is configured and has not failed to
// initialize.
func (c *Communicator) IsUsable() bool {
	return c.usable.Load()
}

// IsConnected reports whether Connect has started a connection. It becomes
// true as soon as the handshake starts, before the connection is open.
func (c *Communicator) IsConnected() bool {
	return c.connected.Load()
}

// Status returns the transport state.
func (c *Communicator) Status() transport.Status {
	return c.endpoint.Status()
}

// Info returns a snapshot of the current connection.
func (c *Communicator) Info() transport.Info {
	return c.endpoint.Info()
}

// Connect freezes the registry and starts the network goroutine. A URL that
// cannot be dialed at all disables the link permanently and is returned as a
// *transport.InitError.
func (c *Communicator) Connect() error {
	if !c.IsUsable() {
		c.logger.Debug("link disabled, not connecting")
		return nil
	}

	c.registry.Freeze()
	c.inbox.Open()

	err := c.endpoint.Connect(c.url)

	var initErr *transport.InitError
	switch {
	case errors.As(err, &initErr):
		c.logger.Error("link disabled, cannot initialize connection",
			"url", c.url,
			log.Error(err))
		c.usable.Store(false)
		c.connected.Store(false)
		return err
	case errors.Is(err, transport.ErrAlreadyConnected):
		c.logger.Debug("connect ignored, already connected")
	case err != nil:
		c.logger.Warn("connect failed", log.Error(err))
	}

	c.usable.Store(true)
	c.connected.Store(true)
	return nil
}

// CallNotification sends a notification. It does nothing when the link is
// unusable or not connected. A send attempted before the connection is open
// is dropped with a diagnostic.
func (c *Communicator) CallNotification(ctx context.Context, method string, params any) error {
	if !c.IsUsable() || !c.IsConnected() {
		return nil
	}

	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("communicator: build notification %q: %w", method, err)
	}

	if err := c.endpoint.SendNotification(n); err != nil {
		c.logger.Warn("notification not sent", log.MethodKey, method, log.Error(err))
		return nil
	}

	c.metrics.RecordNotification(ctx, method)
	return nil
}

// CallMethod sends a request and blocks until the matching response arrives.
//
// There is no internal timeout: only ctx ends the wait early. When the link
// is unusable or not connected an empty response is returned immediately.
func (c *Communicator) CallMethod(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if !c.IsUsable() || !c.IsConnected() {
		return &jsonrpc.Response{}, nil
	}

	id := c.nextID.Add(1)
	req, err := jsonrpc.NewRequest(jsonrpc.IntID(id), method, params)
	if err != nil {
		return nil, fmt.Errorf("communicator: build request %q: %w", method, err)
	}

	ctx, span := c.tracer.Start(ctx, "hostlink.call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.Int64("rpc.jsonrpc.request_id", id),
		))
	defer span.End()

	logger := c.logger.With(log.MethodKey, method, log.RPCIDKey, id)
	start := time.Now()

	c.pending.Expect(id)
	if err := c.endpoint.SendRequest(req); err != nil {
		// The call still waits; a response can only arrive for a request
		// that was written, so this wait lasts until ctx is done.
		logger.Warn("request not sent", log.Error(err))
		span.AddEvent("request not sent", trace.WithAttributes(attribute.String("error", err.Error())))
	}

	resp, err := c.pending.Wait(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("communicator: call %q (id %d): %w", method, id, err)
	}

	elapsed := time.Since(start)
	c.metrics.RecordCall(ctx, method, elapsed)

	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Error.Message)
		logger.Debug("call returned error", "code", resp.Error.Code, "message", resp.Error.Message)
	} else {
		logger.Debug("call completed", log.DurationKey, elapsed.Milliseconds())
	}
	return resp, nil
}

// CloseConnection closes the connection and waits for the network goroutine
// to exit. The inbound queue stops accepting messages. Later calls are no-ops.
func (c *Communicator) CloseConnection() error {
	if !c.IsConnected() {
		return nil
	}
	c.connected.Store(false)
	// Messages still arriving during the close handshake are dropped.
	_ = c.inbox.Close()
	return c.endpoint.Close()
}

// sink receives classified traffic from the network goroutine.
type sink struct {
	c *Communicator
}

// Deliver stores a response for its waiting caller.
func (s sink) Deliver(resp *jsonrpc.Response) {
	id, ok := resp.ID.Int64()
	if !ok {
		s.c.logger.Warn("dropping response without an integer id", log.RPCIDKey, resp.ID.String())
		return
	}
	if !s.c.pending.Store(id, resp) {
		s.c.logger.Warn("dropping response with no pending call", log.RPCIDKey, id)
	}
}

// Enqueue queues inbound request or notification text for the host.
func (s sink) Enqueue(raw []byte) {
	if err := s.c.inbox.Push(raw); err != nil {
		s.c.logger.Warn("dropping inbound message", log.Error(err))
	}
}
