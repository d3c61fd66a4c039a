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
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Status is the lifecycle state of a connection.
type Status int32

const (
	// StatusNone means no connection has been attempted.
	StatusNone Status = iota
	// StatusConnecting means the handshake is in progress.
	StatusConnecting
	// StatusOpen means frames can be exchanged.
	StatusOpen
	// StatusFailed means the handshake did not complete.
	StatusFailed
	// StatusClosed means an open connection has ended.
	StatusClosed
)

// String returns the lowercase state name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "none"
	}
}

// Info is a point-in-time snapshot of a connection.
type Info struct {
	ID     string
	URI    string
	Status Status
	Server string
	Reason string
}

// Connection is one WebSocket session. Status is readable from any
// goroutine; the remaining fields are written by the network goroutine.
type Connection struct {
	id     string
	uri    string
	status atomic.Int32

	mu     sync.Mutex
	ws     *websocket.Conn
	server string
	reason string

	writeMu sync.Mutex
}

func newConnection(uri string) *Connection {
	c := &Connection{
		id:     uuid.NewString(),
		uri:    uri,
		server: "N/A",
	}
	c.status.Store(int32(StatusConnecting))
	return c
}

// ID returns the diagnostic identifier of the connection.
func (c *Connection) ID() string {
	return c.id
}

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	return Status(c.status.Load())
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Info{
		ID:     c.id,
		URI:    c.uri,
		Status: c.Status(),
		Server: c.server,
		Reason: c.reason,
	}
}

func (c *Connection) markOpen(ws *websocket.Conn, resp *http.Response) {
	c.mu.Lock()
	c.ws = ws
	c.server = serverBanner(resp)
	c.mu.Unlock()
	c.status.Store(int32(StatusOpen))
}

func (c *Connection) markFailed(resp *http.Response, err error) {
	c.mu.Lock()
	c.server = serverBanner(resp)
	c.reason = err.Error()
	if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
		c.reason = fmt.Sprintf("%v (http status %d)", err, resp.StatusCode)
	}
	c.mu.Unlock()
	c.status.Store(int32(StatusFailed))
}

func (c *Connection) markClosed(code int, reason string) {
	c.mu.Lock()
	c.reason = fmt.Sprintf("close code: %d (%s), close reason: %s", code, closeCodeText(code), reason)
	c.mu.Unlock()
	c.status.Store(int32(StatusClosed))
}

// write sends one text frame. Writes are serialized per connection.
func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || c.Status() != StatusOpen {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}

// writeClose sends a close frame without waiting for the echo.
func (c *Connection) writeClose(code int, reason string, deadline time.Time) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotOpen
	}

	msg := websocket.FormatCloseMessage(code, reason)
	return ws.WriteControl(websocket.CloseMessage, msg, deadline)
}

// closeSocket drops the underlying network connection.
func (c *Connection) closeSocket() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

func serverBanner(resp *http.Response) string {
	if resp == nil {
		return "N/A"
	}
	if banner := resp.Header.Get("Server"); banner != "" {
		return banner
	}
	return "N/A"
}

var closeCodeTexts = map[int]string{
	websocket.CloseNormalClosure:           "Normal close",
	websocket.CloseGoingAway:               "Going away",
	websocket.CloseProtocolError:           "Protocol error",
	websocket.CloseUnsupportedData:         "Unsupported data",
	websocket.CloseNoStatusReceived:        "No status set",
	websocket.CloseAbnormalClosure:         "Abnormal close",
	websocket.CloseInvalidFramePayloadData: "Invalid payload",
	websocket.ClosePolicyViolation:         "Policy violation",
	websocket.CloseMessageTooBig:           "Message too big",
	websocket.CloseMandatoryExtension:      "Extension required",
	websocket.CloseInternalServerErr:       "Internal endpoint error",
	websocket.CloseServiceRestart:          "Service restart",
	websocket.CloseTryAgainLater:           "Try again later",
	websocket.CloseTLSHandshake:            "TLS handshake failure",
}

func closeCodeText(code int) string {
	if text, ok := closeCodeTexts[code]; ok {
		return text
	}
	return "Unknown"
}
