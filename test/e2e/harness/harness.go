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

// Package harness drives a full link end to end: a scripted host on one
// side of a real WebSocket and a Communicator with the built-in methods on
// the other.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/hostlink/internal/communicator"
	"github.com/tombee/hostlink/internal/handlers"
	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/registry"
	"github.com/tombee/hostlink/internal/testing/wspeer"
	"github.com/tombee/hostlink/internal/transport"
)

// HostMethod answers a request sent by the communicator to the host. A
// non-nil *jsonrpc.Error is sent as the error member.
type HostMethod func(params json.RawMessage) (any, *jsonrpc.Error)

// Harness is a connected host and communicator pair.
type Harness struct {
	t        *testing.T
	peer     *wspeer.Peer
	comm     *communicator.Communicator
	registry *registry.Registry
	timeout  time.Duration
	logger   *slog.Logger
	executor handlers.Executor
	peerOpts []wspeer.Option

	mu          sync.Mutex
	hostMethods map[string]HostMethod
	replies     map[string]*jsonrpc.Response
}

// New starts a scripted host and a communicator pointed at it. Cleanup is
// registered on t. Call Connect to open the link.
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	h := &Harness{
		t:           t,
		timeout:     5 * time.Second,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		hostMethods: make(map[string]HostMethod),
		replies:     make(map[string]*jsonrpc.Response),
		executor: handlers.ExecutorFunc(func(_ context.Context, script string) (string, bool, error) {
			return "ran: " + script, true, nil
		}),
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			t.Fatalf("apply harness option: %v", err)
		}
	}

	h.peer = wspeer.New(append(h.peerOpts, wspeer.WithHandler(h.serveHost))...)

	h.registry = registry.New()
	require.NoError(t, handlers.Register(h.registry, h.executor, h.logger))

	h.comm = communicator.New(communicator.Options{
		URL:          h.peer.URL(),
		Registry:     h.registry,
		Logger:       h.logger,
		CloseTimeout: time.Second,
	})

	t.Cleanup(func() {
		if err := h.comm.CloseConnection(); err != nil {
			t.Logf("cleanup communicator: %v", err)
		}
		h.peer.Close()
	})

	return h
}

// Communicator returns the client side of the link.
func (h *Harness) Communicator() *communicator.Communicator {
	return h.comm
}

// Peer returns the host side of the link.
func (h *Harness) Peer() *wspeer.Peer {
	return h.peer
}

// Timeout is the bound applied to every wait.
func (h *Harness) Timeout() time.Duration {
	return h.timeout
}

// Connect opens the link and waits for the handshake to complete.
func (h *Harness) Connect() {
	h.t.Helper()

	require.NoError(h.t, h.comm.Connect())
	require.True(h.t, h.peer.WaitConnected(h.timeout), "host never saw a connection")
	require.Eventually(h.t, func() bool {
		return h.comm.Status() == transport.StatusOpen
	}, h.timeout, 5*time.Millisecond, "connection never opened")
}

// Call sends a request from the communicator and waits for the host's answer.
func (h *Harness) Call(method string, params any) (*jsonrpc.Response, error) {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.comm.CallMethod(ctx, method, params)
}

// HostCall sends a request from the host, serves it, and returns the reply.
// params is raw JSON and may be empty.
func (h *Harness) HostCall(id int, method, params string) *jsonrpc.Response {
	h.t.Helper()

	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q`, id, method)
	if params != "" {
		msg += `,"params":` + params
	}
	require.NoError(h.t, h.peer.Send(msg+"}"))

	var reply *jsonrpc.Response
	require.Eventually(h.t, func() bool {
		h.comm.ProcessRequests(context.Background())
		var ok bool
		reply, ok = h.Reply(jsonrpc.IntID(int64(id)))
		return ok
	}, h.timeout, 5*time.Millisecond, "no reply to host request %d", id)

	return reply
}

// HostNotify sends a notification from the host.
func (h *Harness) HostNotify(method, params string) {
	h.t.Helper()

	msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":%q`, method)
	if params != "" {
		msg += `,"params":` + params
	}
	require.NoError(h.t, h.peer.Send(msg+"}"))
}

// Reply returns the communicator's answer to a host request, if one arrived.
func (h *Harness) Reply(id jsonrpc.ID) (*jsonrpc.Response, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resp, ok := h.replies[id.String()]
	return resp, ok
}

// serveHost runs on the peer's read goroutine for every frame the
// communicator sends.
func (h *Harness) serveHost(p *wspeer.Peer, data []byte) {
	entity, err := jsonrpc.Parse(data)
	if err != nil {
		return
	}

	switch e := entity.(type) {
	case *jsonrpc.Response:
		h.mu.Lock()
		h.replies[e.ID.String()] = e
		h.mu.Unlock()
	case *jsonrpc.Request:
		h.mu.Lock()
		method, ok := h.hostMethods[e.Method]
		h.mu.Unlock()

		resp := h.answer(e, method, ok)
		out, err := jsonrpc.Marshal(resp)
		if err != nil {
			return
		}
		_ = p.Send(string(out))
	}
}

func (h *Harness) answer(req *jsonrpc.Request, method HostMethod, ok bool) *jsonrpc.Response {
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "host has no method "+req.Method)
	}

	result, rpcErr := method(req.Params)
	if rpcErr != nil {
		return &jsonrpc.Response{ID: req.ID, Error: rpcErr}
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
	}
	return resp
}
