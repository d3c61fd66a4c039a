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

package communicator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/registry"
	"github.com/tombee/hostlink/internal/testing/wspeer"
	"github.com/tombee/hostlink/internal/transport"
)

// answerTrue replies true to every request the peer receives.
func answerTrue(p *wspeer.Peer, data []byte) {
	var msg struct {
		ID     *int64 `json:"id"`
		Method string `json:"method"`
	}
	if json.Unmarshal(data, &msg) != nil || msg.ID == nil || msg.Method == "" {
		return
	}
	_ = p.Send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, *msg.ID))
}

func connected(t *testing.T, peer *wspeer.Peer, opts Options) *Communicator {
	t.Helper()

	opts.URL = peer.URL()
	c := New(opts)
	require.NoError(t, c.Connect())
	t.Cleanup(func() { _ = c.CloseConnection() })

	require.Eventually(t, func() bool {
		return c.Status() == transport.StatusOpen
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, peer.WaitConnected(time.Second))
	return c
}

func nextReply(t *testing.T, peer *wspeer.Peer) string {
	t.Helper()
	frame, ok := peer.Next(2 * time.Second)
	require.True(t, ok, "expected a frame from the communicator")
	return frame.Text()
}

func drain(t *testing.T, c *Communicator, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.inbox.Len() >= want
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, want, c.ProcessRequests(context.Background()))
}

func TestDisabledByConfig(t *testing.T) {
	c := New(Options{})

	assert.False(t, c.IsUsable())
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Connect())
	assert.False(t, c.IsConnected())

	done := make(chan *jsonrpc.Response, 1)
	go func() {
		resp, err := c.CallMethod(context.Background(), "ping", []any{})
		assert.NoError(t, err)
		done <- resp
	}()

	select {
	case resp := <-done:
		assert.True(t, resp.IsEmpty())
	case <-time.After(time.Second):
		t.Fatal("CallMethod blocked on a disabled link")
	}

	assert.NoError(t, c.CallNotification(context.Background(), "log", []string{"x"}))
	assert.Equal(t, 0, c.ProcessRequests(context.Background()))
	assert.NoError(t, c.CloseConnection())
}

func TestConnect_InitErrorDisablesLink(t *testing.T) {
	c := New(Options{URL: "http://127.0.0.1:1/ws"})
	require.True(t, c.IsUsable())

	err := c.Connect()
	var initErr *transport.InitError
	require.ErrorAs(t, err, &initErr)

	assert.False(t, c.IsUsable())
	assert.False(t, c.IsConnected())

	resp, err := c.CallMethod(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.True(t, resp.IsEmpty())
}

func TestConnect_FreezesRegistry(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	reg := registry.New()
	connected(t, peer, Options{Registry: reg})

	err := reg.RegisterFunc("late", func(context.Context, jsonrpc.ID, json.RawMessage) (*jsonrpc.Response, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, registry.ErrFrozen)
}

func TestCallMethod_IDsStartAtOneAndIncrease(t *testing.T) {
	peer := wspeer.New(wspeer.WithHandler(answerTrue))
	defer peer.Close()

	c := connected(t, peer, Options{})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		resp, err := c.CallMethod(ctx, "ping", []any{})
		require.NoError(t, err)

		id, ok := resp.ID.Int64()
		require.True(t, ok)
		assert.Equal(t, want, id)

		frame, ok := peer.Next(time.Second)
		require.True(t, ok)
		assert.JSONEq(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping","params":[]}`, want), frame.Text())
	}
}

func TestCallMethod_PingReturnsPromptly(t *testing.T) {
	var sent atomic.Int64
	peer := wspeer.New(wspeer.WithHandler(func(p *wspeer.Peer, data []byte) {
		sent.Store(time.Now().UnixNano())
		answerTrue(p, data)
	}))
	defer peer.Close()

	c := connected(t, peer, Options{})
	ctx := context.Background()

	// Spend ids 1 and 2 so the ping goes out with id 3.
	for i := 0; i < 2; i++ {
		_, err := c.CallMethod(ctx, "warmup", nil)
		require.NoError(t, err)
	}

	resp, err := c.CallMethod(ctx, "ping", []any{})
	returned := time.Now()
	require.NoError(t, err)

	id, _ := resp.ID.Int64()
	assert.Equal(t, int64(3), id)

	var result bool
	require.NoError(t, resp.UnmarshalResult(&result))
	assert.True(t, result)
	assert.Less(t, returned.Sub(time.Unix(0, sent.Load())), 100*time.Millisecond)
}

func TestCallMethod_ErrorResponse(t *testing.T) {
	peer := wspeer.New(wspeer.WithHandler(func(p *wspeer.Peer, data []byte) {
		_ = p.Send(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method \"nope\" not found"}}`)
	}))
	defer peer.Close()

	c := connected(t, peer, Options{})

	resp, err := c.CallMethod(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.True(t, resp.IsError())
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
}

func TestCallMethod_ContextEndsWait(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	c := connected(t, peer, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.CallMethod(ctx, "silent", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallMethod_RecordsSpan(t *testing.T) {
	peer := wspeer.New(wspeer.WithHandler(answerTrue))
	defer peer.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	c := connected(t, peer, Options{Tracer: tp.Tracer("test")})

	_, err := c.CallMethod(context.Background(), "ping", nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "hostlink.call ping", spans[0].Name())
}

func TestCallNotification(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	c := connected(t, peer, Options{})

	require.NoError(t, c.CallNotification(context.Background(), "log", []string{"hello"}))
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"log","params":["hello"]}`, nextReply(t, peer))
}

func TestProcessRequests_Echo(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	reg := registry.New()
	require.NoError(t, reg.RegisterFunc("echo", func(_ context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error) {
		return jsonrpc.NewResponse(id, params)
	}))
	c := connected(t, peer, Options{Registry: reg})

	require.NoError(t, peer.Send(`{"id":7,"method":"echo","params":["hi"]}`))
	drain(t, c, 1)

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":["hi"]}`, nextReply(t, peer))
}

func TestProcessRequests_UnknownMethod(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	c := connected(t, peer, Options{})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":"abc","method":"nope"}`))
	drain(t, c, 1)

	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":"abc","error":{"code":-32601,"message":"Method \"nope\" not found"}}`,
		nextReply(t, peer))
}

func TestProcessRequests_FIFO(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	reg := registry.New()
	for _, name := range []string{"A", "B"} {
		name := name
		require.NoError(t, reg.RegisterFunc(name, func(_ context.Context, id jsonrpc.ID, _ json.RawMessage) (*jsonrpc.Response, error) {
			return jsonrpc.NewResponse(id, name)
		}))
	}
	c := connected(t, peer, Options{Registry: reg})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":1,"method":"A"}`))
	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":2,"method":"B"}`))
	drain(t, c, 2)

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"A"}`, nextReply(t, peer))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":"B"}`, nextReply(t, peer))
}

func TestProcessRequests_HandlerFailures(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	reg := registry.New()
	require.NoError(t, reg.RegisterFunc("fails", func(context.Context, jsonrpc.ID, json.RawMessage) (*jsonrpc.Response, error) {
		return nil, errors.New("scene not loaded")
	}))
	require.NoError(t, reg.RegisterFunc("panics", func(context.Context, jsonrpc.ID, json.RawMessage) (*jsonrpc.Response, error) {
		panic("boom")
	}))
	require.NoError(t, reg.RegisterFunc("silent", func(context.Context, jsonrpc.ID, json.RawMessage) (*jsonrpc.Response, error) {
		return nil, nil
	}))
	c := connected(t, peer, Options{Registry: reg})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":1,"method":"fails"}`))
	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":2,"method":"panics"}`))
	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":3,"method":"silent"}`))
	drain(t, c, 3)

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"scene not loaded"}}`, nextReply(t, peer))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"error":{"code":-32603,"message":"Crashed"}}`, nextReply(t, peer))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":null}`, nextReply(t, peer))
}

func TestProcessRequests_ReplyCarriesRequestID(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	reg := registry.New()
	require.NoError(t, reg.RegisterFunc("wrong_id", func(context.Context, jsonrpc.ID, json.RawMessage) (*jsonrpc.Response, error) {
		return jsonrpc.NewResponse(jsonrpc.IntID(99), true)
	}))
	c := connected(t, peer, Options{Registry: reg})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":7,"method":"wrong_id"}`))
	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":"abc","method":"wrong_id"}`))
	drain(t, c, 2)

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":true}`, nextReply(t, peer))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","result":true}`, nextReply(t, peer))
}

func TestProcessRequests_NotificationsAreNotAnswered(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	var calls atomic.Int32
	reg := registry.New()
	require.NoError(t, reg.RegisterFunc("log", func(_ context.Context, id jsonrpc.ID, _ json.RawMessage) (*jsonrpc.Response, error) {
		assert.True(t, id.IsZero())
		calls.Add(1)
		return jsonrpc.NewResponse(id, "ignored")
	}))
	c := connected(t, peer, Options{Registry: reg})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","method":"log","params":["a"]}`))
	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","method":"unknown"}`))
	drain(t, c, 2)

	assert.Equal(t, int32(1), calls.Load())
	_, got := peer.Next(100 * time.Millisecond)
	assert.False(t, got, "notifications must not be answered")
}

func TestCloseConnection(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	c := connected(t, peer, Options{})

	require.NoError(t, c.CloseConnection())
	assert.Equal(t, transport.StatusClosed, c.Status())
	assert.False(t, c.IsConnected())
	assert.True(t, c.IsUsable())

	resp, err := c.CallMethod(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.True(t, resp.IsEmpty())
}

func TestCloseConnection_DropsLaterInbound(t *testing.T) {
	peer := wspeer.New()
	defer peer.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := connected(t, peer, Options{Logger: logger})

	require.NoError(t, peer.Send(`{"jsonrpc":"2.0","id":1,"method":"echo"}`))
	require.Eventually(t, func() bool {
		return c.inbox.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.CloseConnection())

	sink{c}.Enqueue([]byte(`{"jsonrpc":"2.0","id":2,"method":"echo"}`))
	assert.Equal(t, 1, c.inbox.Len())
	assert.Contains(t, buf.String(), "dropping inbound message")

	// A new connection accepts requests again.
	require.True(t, peer.WaitDisconnected(2*time.Second))
	require.NoError(t, c.Connect())
	require.Eventually(t, func() bool {
		_ = peer.Send(`{"jsonrpc":"2.0","id":3,"method":"echo"}`)
		return c.inbox.Len() >= 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDeliver_DropsUncorrelatableResponses(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws"})
	s := sink{c}

	s.Deliver(&jsonrpc.Response{ID: jsonrpc.StringID("x"), Result: json.RawMessage(`1`)})
	s.Deliver(&jsonrpc.Response{Result: json.RawMessage(`1`)})
	assert.Equal(t, 0, c.pending.Len())

	s.Deliver(&jsonrpc.Response{ID: jsonrpc.IntID(4), Result: json.RawMessage(`1`)})
	assert.Equal(t, 0, c.pending.Len(), "no call is waiting on id 4")

	c.pending.Expect(4)
	s.Deliver(&jsonrpc.Response{ID: jsonrpc.IntID(4), Result: json.RawMessage(`1`)})
	assert.Equal(t, 1, c.pending.Len())
}
