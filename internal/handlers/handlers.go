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

// Package handlers provides the host's built-in JSON-RPC methods.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tombee/hostlink/internal/jsonrpc"
	"github.com/tombee/hostlink/internal/log"
	"github.com/tombee/hostlink/internal/registry"
)

// Method names served by this package.
const (
	MethodExecuteGeorge = "execute_george"
	MethodPing          = "ping"
)

// crashedResult is returned as the result when the executor panics.
const crashedResult = "Crashed"

// Executor runs one host script.
//
// output is the script's textual output. ok is the host's success flag and
// is reported only when output is empty.
type Executor interface {
	Execute(ctx context.Context, script string) (output string, ok bool, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, script string) (string, bool, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, script string) (string, bool, error) {
	return f(ctx, script)
}

// George serves execute_george. Every outcome, including executor failures,
// is reported as a successful result so the remote side always gets a value
// back.
type George struct {
	executor Executor
	logger   *slog.Logger
}

// NewGeorge creates the execute_george handler.
func NewGeorge(executor Executor, logger *slog.Logger) *George {
	if logger == nil {
		logger = slog.Default()
	}
	return &George{
		executor: executor,
		logger:   log.WithComponent(logger, "george"),
	}
}

// ServeRPC implements registry.Handler. params must be an array whose first
// element is the script.
func (g *George) ServeRPC(ctx context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error) {
	return jsonrpc.NewResponse(id, g.run(ctx, params))
}

func (g *George) run(ctx context.Context, params json.RawMessage) (result any) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("script executor panicked", "panic", fmt.Sprint(r))
			result = crashedResult
		}
	}()

	script, err := scriptParam(params)
	if err != nil {
		return err.Error()
	}

	output, ok, err := g.executor.Execute(ctx, script)
	if err != nil {
		g.logger.Warn("script failed", log.Error(err))
		return err.Error()
	}
	if output == "" {
		return ok
	}
	return output
}

var errNoScript = errors.New("params must be an array whose first element is a script")

func scriptParam(params json.RawMessage) (string, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return "", errNoScript
	}

	var script string
	if err := json.Unmarshal(args[0], &script); err != nil {
		return "", fmt.Errorf("%w: %v", errNoScript, err)
	}
	return script, nil
}

// Ping echoes the seq member of its params as {"seq": seq}.
func Ping(_ context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error) {
	var p struct {
		Seq json.RawMessage `json:"seq"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("ping params must be an object: %w", err)
		}
	}
	if len(p.Seq) == 0 {
		p.Seq = json.RawMessage("null")
	}
	return jsonrpc.NewResponse(id, map[string]json.RawMessage{"seq": p.Seq})
}

// Register installs the built-in methods on reg.
func Register(reg *registry.Registry, executor Executor, logger *slog.Logger) error {
	if err := reg.Register(MethodExecuteGeorge, NewGeorge(executor, logger)); err != nil {
		return err
	}
	return reg.RegisterFunc(MethodPing, Ping)
}
