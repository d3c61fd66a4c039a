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

package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/log"
)

var (
	// ErrAlreadyConnected is returned by Connect while a connection is open
	// or still connecting.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrNotOpen is returned when sending without an open connection.
	ErrNotOpen = errors.New("transport: connection not open")

	errUnsupportedScheme = errors.New("scheme must be ws or wss")
	errMissingHost       = errors.New("missing host")
)

// InitError reports a URI the endpoint cannot dial at all. It is permanent
// for that URI.
type InitError struct {
	URI string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("transport: cannot initialize connection to %q: %v", e.URI, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

const (
	// DefaultHandshakeTimeout bounds the opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultCloseTimeout bounds the wait for the peer's close echo.
	DefaultCloseTimeout = 5 * time.Second
)

// Sink receives classified inbound traffic on the network goroutine.
type Sink interface {
	// Deliver receives a response to an outbound request.
	Deliver(resp *jsonrpc.Response)

	// Enqueue receives the raw text of an inbound request or notification.
	Enqueue(raw []byte)
}

// Hooks are optional observers invoked on the network goroutine after each
// state change.
type Hooks struct {
	OnOpen    func(Info)
	OnFail    func(Info)
	OnClose   func(Info)
	OnMessage func(info Info, payload []byte)
}

// Recorder counts transport events. The metrics collector implements it.
type Recorder interface {
	RecordInbound(ctx context.Context, kind string)
	RecordSendDropped(ctx context.Context)
}

// Config configures an Endpoint.
type Config struct {
	// Dialer is used for the opening handshake. Default: a copy of
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HandshakeTimeout bounds the opening handshake.
	// Default: 10 seconds
	HandshakeTimeout time.Duration

	// CloseTimeout bounds how long Close waits for the peer to echo the
	// close frame.
	// Default: 5 seconds
	CloseTimeout time.Duration

	// Sink receives inbound traffic. Inbound messages are logged and dropped
	// when nil.
	Sink Sink

	// Hooks are optional lifecycle observers.
	Hooks Hooks

	// Recorder is optional.
	Recorder Recorder

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Endpoint manages at most one live connection and its network goroutine.
type Endpoint struct {
	dialer       *websocket.Dialer
	closeTimeout time.Duration
	sink         Sink
	hooks        Hooks
	recorder     Recorder
	logger       *slog.Logger

	mu     sync.Mutex
	conn   *Connection
	cancel context.CancelFunc
	done   chan struct{}

	// connecting is set while a Connect waits for the previous goroutine
	// with mu released.
	connecting bool

	notOpen rate.Sometimes
}

// NewEndpoint creates an endpoint. No connection is attempted until Connect.
func NewEndpoint(cfg Config) *Endpoint {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}

	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}

	return &Endpoint{
		dialer:       dialer,
		closeTimeout: cfg.CloseTimeout,
		sink:         cfg.Sink,
		hooks:        cfg.Hooks,
		recorder:     cfg.Recorder,
		logger:       log.WithComponent(cfg.Logger, "transport"),
		notOpen:      rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Connect validates uri and starts the network goroutine. It returns as soon
// as the goroutine is running; the outcome of the handshake is reported
// through Status and the hooks.
func (e *Endpoint) Connect(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return &InitError{URI: uri, Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &InitError{URI: uri, Err: errUnsupportedScheme}
	}
	if u.Host == "" {
		return &InitError{URI: uri, Err: errMissingHost}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connecting {
		return ErrAlreadyConnected
	}

	if e.conn != nil {
		if e.conn.Status() == StatusConnecting || e.conn.Status() == StatusOpen {
			return ErrAlreadyConnected
		}

		// The previous goroutine has reached a terminal state but may still
		// be running hooks.
		done := e.done
		e.connecting = true
		e.mu.Unlock()
		<-done
		e.mu.Lock()
		e.connecting = false

		if s := e.conn.Status(); s == StatusConnecting || s == StatusOpen {
			return ErrAlreadyConnected
		}
	}

	conn := newConnection(uri)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.conn = conn
	e.cancel = cancel
	e.done = done

	go e.run(ctx, conn, done)
	return nil
}

// run is the network goroutine.
func (e *Endpoint) run(ctx context.Context, conn *Connection, done chan struct{}) {
	defer close(done)

	logger := log.WithConnection(e.logger, conn.ID())
	logger.Debug("connecting", "uri", conn.uri)

	ws, resp, err := e.dialer.DialContext(ctx, conn.uri, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		conn.markFailed(resp, err)
		info := conn.Info()
		logger.Warn("connection failed",
			"server", info.Server,
			"reason", info.Reason)
		if e.hooks.OnFail != nil {
			e.hooks.OnFail(info)
		}
		return
	}

	conn.markOpen(ws, resp)
	if ctx.Err() != nil {
		_ = ws.Close()
		conn.markClosed(websocket.CloseGoingAway, "closed while connecting")
		return
	}

	info := conn.Info()
	logger.Info("connection opened", "uri", info.URI, "server", info.Server)
	if e.hooks.OnOpen != nil {
		e.hooks.OnOpen(info)
	}

	e.readLoop(ctx, conn, ws, logger)
}

func (e *Endpoint) readLoop(ctx context.Context, conn *Connection, ws *websocket.Conn, logger *slog.Logger) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			code, reason := websocket.CloseAbnormalClosure, err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
			} else if errors.Is(err, net.ErrClosed) {
				reason = "connection dropped locally"
			}

			_ = ws.Close()
			conn.markClosed(code, reason)

			info := conn.Info()
			logger.Info("connection closed", "reason", info.Reason)
			if e.hooks.OnClose != nil {
				e.hooks.OnClose(info)
			}
			return
		}

		payload := data
		if mt == websocket.BinaryMessage {
			payload = []byte(hex.EncodeToString(data))
			logger.Debug("binary frame received", "bytes", len(data))
		}

		if e.hooks.OnMessage != nil {
			e.hooks.OnMessage(conn.Info(), payload)
		}

		if mt == websocket.BinaryMessage {
			e.dispatchBinary(ctx, conn, payload, logger)
			continue
		}
		e.dispatch(ctx, conn, payload, logger)
	}
}

// Disconnect asks the peer to close the connection. It does not wait.
func (e *Endpoint) Disconnect(code int, reason string) {
	conn := e.current()
	if conn == nil || conn.Status() != StatusOpen {
		e.logger.Info("disconnect ignored, connection not open")
		return
	}

	if err := conn.writeClose(code, reason, time.Now().Add(e.closeTimeout)); err != nil {
		e.logger.Warn("failed to send close frame",
			log.ConnectionIDKey, conn.ID(),
			log.Error(err))
	}
}

// Close shuts the connection down and joins the network goroutine. An open
// connection is sent a going-away close frame and given CloseTimeout to
// answer; a handshake in progress is cancelled.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	conn, cancel, done := e.conn, e.cancel, e.done
	e.mu.Unlock()

	if conn == nil {
		return nil
	}

	cancel()

	var closeErr error
	if conn.Status() == StatusOpen {
		err := conn.writeClose(websocket.CloseGoingAway, "", time.Now().Add(e.closeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
			closeErr = fmt.Errorf("transport: send close frame: %w", err)
		}
	}

	timer := time.NewTimer(e.closeTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.logger.Warn("peer did not answer close frame, dropping connection",
			log.ConnectionIDKey, conn.ID(),
			"timeout", e.closeTimeout)
		conn.closeSocket()
		<-done
	}

	return closeErr
}

// Status returns the state of the current connection.
func (e *Endpoint) Status() Status {
	conn := e.current()
	if conn == nil {
		return StatusNone
	}
	return conn.Status()
}

// Info returns a snapshot of the current connection.
func (e *Endpoint) Info() Info {
	conn := e.current()
	if conn == nil {
		return Info{Status: StatusNone, Server: "N/A"}
	}
	return conn.Info()
}

func (e *Endpoint) current() *Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// Send writes raw text to the peer.
func (e *Endpoint) Send(data []byte) error {
	conn := e.current()
	if conn == nil || conn.Status() != StatusOpen {
		e.dropped(conn)
		return ErrNotOpen
	}

	log.Trace(e.logger, "-->", slog.String(log.ConnectionIDKey, conn.ID()), slog.String("payload", string(data)))
	if err := conn.write(data); err != nil {
		if errors.Is(err, ErrNotOpen) {
			e.dropped(conn)
		}
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (e *Endpoint) dropped(conn *Connection) {
	if e.recorder != nil {
		e.recorder.RecordSendDropped(context.Background())
	}

	status := StatusNone
	if conn != nil {
		status = conn.Status()
	}
	e.notOpen.Do(func() {
		e.logger.Warn("cannot send, connection not open", "status", status.String())
	})
}

// SendRequest serializes and sends req.
func (e *Endpoint) SendRequest(req *jsonrpc.Request) error {
	return e.sendEntity(req)
}

// SendNotification serializes and sends n.
func (e *Endpoint) SendNotification(n *jsonrpc.Notification) error {
	return e.sendEntity(n)
}

// SendResponse serializes and sends resp.
func (e *Endpoint) SendResponse(resp *jsonrpc.Response) error {
	return e.sendEntity(resp)
}

func (e *Endpoint) sendEntity(entity jsonrpc.Entity) error {
	data, err := jsonrpc.Marshal(entity)
	if err != nil {
		return fmt.Errorf("transport: marshal %s: %w", entity.Kind(), err)
	}
	return e.Send(data)
}
