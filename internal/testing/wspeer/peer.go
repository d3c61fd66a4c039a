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

// Package wspeer provides a scripted WebSocket peer for tests.
//
// A Peer accepts one client connection at a time on an httptest server,
// records every frame it receives and lets the test push frames back.
package wspeer

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoClient is returned by Send when no client is connected.
var ErrNoClient = errors.New("wspeer: no client connected")

// Frame is one message received from the client.
type Frame struct {
	Type int
	Data []byte
}

// Text returns the frame payload as a string.
func (f Frame) Text() string {
	return string(f.Data)
}

// Handler is called on the peer's read goroutine for every text or binary
// frame received from the client.
type Handler func(p *Peer, data []byte)

// Option configures a Peer.
type Option func(*Peer)

// WithServerHeader sets the Server header sent in the handshake response.
func WithServerHeader(banner string) Option {
	return func(p *Peer) {
		p.banner = banner
	}
}

// WithHandler installs a handler for received frames.
func WithHandler(h Handler) Option {
	return func(p *Peer) {
		p.handler = h
	}
}

// WithReject makes the peer answer the handshake with the given HTTP status.
func WithReject(status int) Option {
	return func(p *Peer) {
		p.reject = status
	}
}

// Peer is a WebSocket server used as the remote side in tests.
type Peer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	banner   string
	handler  Handler
	reject   int

	mu        sync.Mutex
	conn      *websocket.Conn
	connected chan struct{}
	closed    chan struct{}

	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

// New starts a peer. Call Close when done.
func New(opts ...Option) *Peer {
	p := &Peer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
		frames:    make(chan Frame, 256),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.server = httptest.NewServer(http.HandlerFunc(p.serveWS))
	return p
}

// URL returns the ws:// address of the peer.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func (p *Peer) serveWS(w http.ResponseWriter, r *http.Request) {
	if p.reject != 0 {
		http.Error(w, http.StatusText(p.reject), p.reject)
		return
	}

	var header http.Header
	if p.banner != "" {
		header = http.Header{"Server": []string{p.banner}}
	}

	conn, err := p.upgrader.Upgrade(w, r, header)
	if err != nil {
		return
	}

	closed := make(chan struct{})
	p.mu.Lock()
	p.conn = conn
	p.closed = closed
	select {
	case <-p.connected:
	default:
		close(p.connected)
	}
	p.mu.Unlock()

	defer close(closed)
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		select {
		case p.frames <- Frame{Type: mt, Data: data}:
		case <-p.done:
			return
		}

		if p.handler != nil {
			p.handler(p, data)
		}
	}
}

// WaitConnected blocks until a client has completed the handshake.
func (p *Peer) WaitConnected(timeout time.Duration) bool {
	p.mu.Lock()
	ch := p.connected
	p.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitDisconnected blocks until the current client's read loop has ended.
func (p *Peer) WaitDisconnected(timeout time.Duration) bool {
	p.mu.Lock()
	ch := p.closed
	p.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Next returns the next received frame, or false after timeout.
func (p *Peer) Next(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-p.frames:
		return f, true
	case <-time.After(timeout):
		return Frame{}, false
	}
}

// Send writes a text frame to the connected client.
func (p *Peer) Send(data string) error {
	return p.write(websocket.TextMessage, []byte(data))
}

// SendBinary writes a binary frame to the connected client.
func (p *Peer) SendBinary(data []byte) error {
	return p.write(websocket.BinaryMessage, data)
}

func (p *Peer) write(mt int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return ErrNoClient
	}
	return p.conn.WriteMessage(mt, data)
}

// CloseClient sends a close frame with the given code and reason.
func (p *Peer) CloseClient(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return ErrNoClient
	}
	msg := websocket.FormatCloseMessage(code, reason)
	return p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Close stops the server and drops any client connection.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.mu.Unlock()
		p.server.Close()
	})
}
