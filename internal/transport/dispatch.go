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
	"errors"
	"log/slog"

	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/log"
)

// dispatch classifies one inbound payload. Protocol errors are answered
// here, on the network goroutine, exactly once.
func (e *Endpoint) dispatch(ctx context.Context, conn *Connection, raw []byte, logger *slog.Logger) {
	log.Trace(logger, "<--", slog.String("payload", string(raw)))

	entity, err := jsonrpc.Parse(raw)
	if err != nil {
		e.record(ctx, "invalid")

		var perr jsonrpc.ProtocolError
		if !errors.As(err, &perr) {
			logger.Error("unclassifiable inbound message", log.Error(err))
			return
		}

		logger.Warn("rejecting malformed message", log.Error(err))
		e.reject(conn, perr, logger)
		return
	}

	e.record(ctx, entity.Kind().String())

	if e.sink == nil {
		logger.Warn("no sink configured, dropping inbound message", "kind", entity.Kind().String())
		return
	}

	switch m := entity.(type) {
	case *jsonrpc.Response:
		e.sink.Deliver(m)
	case *jsonrpc.Request:
		logger.Debug("queueing request", log.MethodKey, m.Method, log.RPCIDKey, m.ID.String())
		e.sink.Enqueue(raw)
	case *jsonrpc.Notification:
		logger.Debug("queueing notification", log.MethodKey, m.Method)
		e.sink.Enqueue(raw)
	}
}

// dispatchBinary answers a binary frame. Only text frames carry messages, so
// every binary frame gets one parse error reply whatever its content.
func (e *Endpoint) dispatchBinary(ctx context.Context, conn *Connection, hexPayload []byte, logger *slog.Logger) {
	e.record(ctx, "invalid")
	logger.Warn("rejecting binary frame", "hex", string(hexPayload))
	e.reject(conn, &jsonrpc.ParseError{Detail: "binary frame"}, logger)
}

// reject sends the error reply for a protocol error.
func (e *Endpoint) reject(conn *Connection, perr jsonrpc.ProtocolError, logger *slog.Logger) {
	reply, err := jsonrpc.Marshal(perr.Reply())
	if err != nil {
		logger.Error("failed to encode error reply", log.Error(err))
		return
	}
	if err := conn.write(reply); err != nil {
		logger.Warn("failed to send error reply", log.Error(err))
	}
}

func (e *Endpoint) record(ctx context.Context, kind string) {
	if e.recorder != nil {
		e.recorder.RecordInbound(ctx, kind)
	}
}
