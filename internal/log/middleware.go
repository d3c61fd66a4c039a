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

package log

import (
	"context"
	"log/slog"
	"time"
)

// RPCRequest describes an inbound call for logging purposes.
type RPCRequest struct {
	// Method is the JSON-RPC method name.
	Method string

	// ID is the request id as it appears on the wire ("null" for notifications).
	ID string

	// Kind is "request" or "notification".
	Kind string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// RPCResponse describes the outcome of an inbound call.
type RPCResponse struct {
	// Success indicates whether the handler completed without error.
	Success bool

	// Error is the error message if the handler failed.
	Error string

	// DurationMs is the handler duration in milliseconds.
	DurationMs int64
}

// LogRPCRequest logs an inbound call as it is dispatched.
func LogRPCRequest(logger *slog.Logger, req *RPCRequest) {
	attrs := []any{
		EventKey, "rpc_request",
		MethodKey, req.Method,
		"kind", req.Kind,
	}

	if req.ID != "" {
		attrs = append(attrs, RPCIDKey, req.ID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug("rpc request dispatched", attrs...)
}

// LogRPCResponse logs the outcome of an inbound call.
func LogRPCResponse(logger *slog.Logger, req *RPCRequest, resp *RPCResponse) {
	attrs := []any{
		EventKey, "rpc_response",
		MethodKey, req.Method,
		"success", resp.Success,
		DurationKey, resp.DurationMs,
	}

	if req.ID != "" {
		attrs = append(attrs, RPCIDKey, req.ID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	level := slog.LevelDebug
	message := "rpc request completed"

	if !resp.Success {
		level = slog.LevelWarn
		message = "rpc request failed"
	}

	logger.Log(context.Background(), level, message, attrs...)
}

// RPCMiddleware wraps inbound handler execution with logging.
type RPCMiddleware struct {
	logger *slog.Logger
}

// NewRPCMiddleware creates a new RPC logging middleware.
func NewRPCMiddleware(logger *slog.Logger) *RPCMiddleware {
	return &RPCMiddleware{
		logger: logger,
	}
}

// Handler logs req, runs handler, and logs the outcome.
func (m *RPCMiddleware) Handler(req *RPCRequest, handler func() error) error {
	start := time.Now()

	LogRPCRequest(m.logger, req)

	err := handler()

	resp := &RPCResponse{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	LogRPCResponse(m.logger, req, resp)

	return err
}
