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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/log"
	"github.com/tombee/hostlink/internal/registry"
)

// crashMessage is the error message sent when a handler panics.
const crashMessage = "Crashed"

// errCrashed marks a recovered handler panic.
var errCrashed = errors.New(crashMessage)

// ProcessRequests drains the inbound queue on the calling goroutine and
// returns the number of messages handled. Requests are answered in the
// order they arrived. Handler failures become error responses and never
// reach the caller. Remaining messages stay queued if ctx is done.
func (c *Communicator) ProcessRequests(ctx context.Context) int {
	if !c.IsUsable() || !c.IsConnected() || c.inbox.Len() == 0 {
		return 0
	}

	handled := 0
	for ctx.Err() == nil {
		raw, ok := c.inbox.Pop()
		if !ok {
			break
		}
		handled++

		entity, err := jsonrpc.Parse(raw)
		if err != nil {
			c.logger.Error("skipping unparseable queued message", log.Error(err))
			continue
		}

		switch m := entity.(type) {
		case *jsonrpc.Response:
			c.reply(ctx, m, "forwarded")
		case *jsonrpc.Request:
			c.serveRequest(ctx, m)
		case *jsonrpc.Notification:
			c.serveNotification(ctx, m)
		}
	}
	return handled
}

func (c *Communicator) serveRequest(ctx context.Context, req *jsonrpc.Request) {
	h, err := c.registry.Lookup(req.Method)
	if err != nil {
		c.logger.Warn("method not found", log.MethodKey, req.Method, log.RPCIDKey, req.ID.String())
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound,
			fmt.Sprintf("Method %q not found", req.Method))
		c.reply(ctx, resp, "not_found")
		return
	}

	ctx, span := c.tracer.Start(ctx, "hostlink.serve "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
			attribute.String("rpc.jsonrpc.request_id", req.ID.String()),
		))
	defer span.End()

	resp, err := c.invoke(ctx, h, &log.RPCRequest{
		Method: req.Method,
		ID:     req.ID.String(),
		Kind:   "request",
	}, req.ID, req.Params)

	outcome := "success"
	switch {
	case errors.Is(err, errCrashed):
		outcome = "crashed"
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, crashMessage)
	case err != nil:
		outcome = "error"
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
	case resp == nil:
		resp, err = jsonrpc.NewResponse(req.ID, nil)
		if err != nil {
			outcome = "error"
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
	}
	if !resp.ID.IsZero() && resp.ID != req.ID {
		c.logger.Warn("handler answered with a different id, replying with the request id",
			log.MethodKey, req.Method,
			log.RPCIDKey, req.ID.String(),
			"handler_id", resp.ID.String())
	}
	resp.ID = req.ID

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.reply(ctx, resp, outcome)
}

func (c *Communicator) serveNotification(ctx context.Context, n *jsonrpc.Notification) {
	h, err := c.registry.Lookup(n.Method)
	if err != nil {
		c.logger.Warn("no handler for notification", log.MethodKey, n.Method)
		return
	}

	// Notifications are never answered, even on failure.
	_, _ = c.invoke(ctx, h, &log.RPCRequest{
		Method: n.Method,
		Kind:   "notification",
	}, jsonrpc.ID{}, n.Params)
}

// invoke runs h on the calling goroutine. A panic is recovered and reported
// as errCrashed.
func (c *Communicator) invoke(ctx context.Context, h registry.Handler, info *log.RPCRequest, id jsonrpc.ID, params json.RawMessage) (resp *jsonrpc.Response, err error) {
	err = c.middleware.Handler(info, func() (herr error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("handler panicked",
					log.MethodKey, info.Method,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				resp = nil
				herr = errCrashed
			}
		}()

		resp, herr = h.ServeRPC(ctx, id, params)
		return herr
	})
	return resp, err
}

func (c *Communicator) reply(ctx context.Context, resp *jsonrpc.Response, outcome string) {
	if err := c.endpoint.SendResponse(resp); err != nil {
		c.logger.Warn("reply not sent", log.RPCIDKey, resp.ID.String(), log.Error(err))
		return
	}
	c.metrics.RecordReply(ctx, outcome)
}
