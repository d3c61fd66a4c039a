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

package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hostlink/internal/handlers"
	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/tools"
	"github.com/tombee/hostlink/test/e2e/harness"
)

func TestHostPing(t *testing.T) {
	h := harness.New(t)
	h.Connect()

	reply := h.HostCall(3, handlers.MethodPing, `{"seq":42}`)
	assert.False(t, reply.IsError())
	assert.JSONEq(t, `{"seq":42}`, string(reply.Result))
}

func TestHostExecuteGeorge(t *testing.T) {
	scripts := make(chan string, 1)
	h := harness.New(t,
		harness.WithExecutor(handlers.ExecutorFunc(func(_ context.Context, script string) (string, bool, error) {
			scripts <- script
			return "", true, nil
		})),
	)
	h.Connect()

	reply := h.HostCall(1, handlers.MethodExecuteGeorge, `["render --frame 1"]`)
	require.False(t, reply.IsError())
	assert.JSONEq(t, `true`, string(reply.Result))
	assert.Equal(t, "render --frame 1", <-scripts)
}

func TestHostExecuteGeorgeOutput(t *testing.T) {
	h := harness.New(t)
	h.Connect()

	reply := h.HostCall(2, handlers.MethodExecuteGeorge, `["tv_version"]`)
	require.False(t, reply.IsError())

	var out string
	require.NoError(t, reply.UnmarshalResult(&out))
	assert.Equal(t, "ran: tv_version", out)
}

func TestHostRequestWhileCallPending(t *testing.T) {
	seen := make(chan struct{})
	release := make(chan struct{})
	h := harness.New(t,
		harness.WithHostMethod("slow", func(json.RawMessage) (any, *jsonrpc.Error) {
			close(seen)
			<-release
			return "done", nil
		}),
	)
	h.Connect()

	type result struct {
		resp *jsonrpc.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := h.Call("slow", nil)
		done <- result{resp, err}
	}()

	select {
	case <-seen:
	case <-time.After(h.Timeout()):
		t.Fatal("host never received the call")
	}

	// The call is outstanding; serve a host request in the meantime.
	require.NoError(t, h.Peer().Send(`{"jsonrpc":"2.0","id":9,"method":"ping","params":{"seq":1}}`))
	require.Eventually(t, func() bool {
		return h.Communicator().ProcessRequests(context.Background()) == 1
	}, h.Timeout(), 5*time.Millisecond)

	close(release)

	r := <-done
	require.NoError(t, r.err)
	assert.JSONEq(t, `"done"`, string(r.resp.Result))

	require.Eventually(t, func() bool {
		_, ok := h.Reply(jsonrpc.IntID(9))
		return ok
	}, h.Timeout(), 5*time.Millisecond)
	reply, _ := h.Reply(jsonrpc.IntID(9))
	assert.JSONEq(t, `{"seq":1}`, string(reply.Result))
}

func TestLaunchTool(t *testing.T) {
	h := harness.New(t,
		harness.WithHostMethod(tools.Workfiles, func(params json.RawMessage) (any, *jsonrpc.Error) {
			return string(params), nil
		}),
	)
	h.Connect()

	resp, err := tools.Launch(t.Context(), h.Communicator(), tools.Workfiles)
	require.NoError(t, err)
	assert.JSONEq(t, `"[]"`, string(resp.Result))

	_, err = tools.Launch(t.Context(), h.Communicator(), tools.Publish)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}
