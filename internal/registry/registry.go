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

// Package registry binds JSON-RPC method names to host handlers.
//
// Handlers are registered once at startup. The registry is frozen when the
// link connects and is read-only from then on.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/hostlink/internal/jsonrpc"
	hostlinkerrors "github.com/tombee/hostlink/pkg/errors"
)

var (
	// ErrFrozen is returned when registering after the registry was frozen.
	ErrFrozen = errors.New("registry: frozen")

	// ErrDuplicate is returned when a method name is registered twice.
	ErrDuplicate = errors.New("registry: method already registered")
)

// Handler serves one inbound request. It runs on the host goroutine.
type Handler interface {
	ServeRPC(ctx context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error)

// ServeRPC calls f.
func (f HandlerFunc) ServeRPC(ctx context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error) {
	return f(ctx, id, params)
}

// Registry maps method names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds method to h.
func (r *Registry) Register(method string, h Handler) error {
	if method == "" {
		return &hostlinkerrors.ValidationError{Field: "method", Message: "method name is empty"}
	}
	if h == nil {
		return &hostlinkerrors.ValidationError{Field: "handler", Message: "handler is nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrFrozen, method)
	}
	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, method)
	}
	r.handlers[method] = h
	return nil
}

// RegisterFunc is a convenience wrapper around Register for plain functions.
func (r *Registry) RegisterFunc(method string, f func(ctx context.Context, id jsonrpc.ID, params json.RawMessage) (*jsonrpc.Response, error)) error {
	return r.Register(method, HandlerFunc(f))
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the handler for method, or a *errors.NotFoundError.
func (r *Registry) Lookup(method string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[method]
	if !ok {
		return nil, &hostlinkerrors.NotFoundError{Resource: "method", ID: method}
	}
	return h, nil
}

// Methods returns the registered method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
