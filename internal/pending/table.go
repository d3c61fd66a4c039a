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

// Package pending correlates outbound request ids with their responses.
//
// The host goroutine registers each id it allocates before sending the
// request. The network goroutine stores responses as they arrive, and the
// host goroutine waits for its id and removes the entry once consumed. If two
// responses arrive for the same id before it is consumed, the later one wins.
// Responses for ids nobody awaits are dropped, which covers late duplicates
// and answers to calls whose context already ended.
package pending

import (
	"context"
	"sync"

	"github.com/tombee/hostlink/internal/jsonrpc"
)

// Table maps request ids to responses. It is safe for concurrent use.
type Table struct {
	mu       sync.Mutex
	expected map[int64]struct{}
	entries  map[int64]*jsonrpc.Response
	waiters  map[int64]chan struct{}
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		expected: make(map[int64]struct{}),
		entries:  make(map[int64]*jsonrpc.Response),
		waiters:  make(map[int64]chan struct{}),
	}
}

// Expect registers id as awaited. Call it before the request is sent so a
// response arriving ahead of Wait is kept.
func (t *Table) Expect(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expected[id] = struct{}{}
}

// Store records resp under id, replacing any unconsumed response with the
// same id, and wakes the waiter for that id. It reports false and drops resp
// when id is not awaited.
func (t *Table) Store(id int64, resp *jsonrpc.Response) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.expected[id]; !ok {
		return false
	}

	t.entries[id] = resp
	if ch, ok := t.waiters[id]; ok {
		close(ch)
		delete(t.waiters, id)
	}
	return true
}

// Take removes and returns the response for id, if present. A taken id is
// no longer awaited.
func (t *Table) Take(id int64) (*jsonrpc.Response, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	resp, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		delete(t.expected, id)
	}
	return resp, ok
}

// Wait blocks until a response for id is stored, then removes and returns
// it. Waiting on an id registers it as awaited. There is no timeout; only
// ctx ends the wait early, after which responses for id are dropped.
func (t *Table) Wait(ctx context.Context, id int64) (*jsonrpc.Response, error) {
	for {
		t.mu.Lock()
		t.expected[id] = struct{}{}
		if resp, ok := t.entries[id]; ok {
			delete(t.entries, id)
			delete(t.expected, id)
			t.mu.Unlock()
			return resp, nil
		}
		ch, ok := t.waiters[id]
		if !ok {
			ch = make(chan struct{})
			t.waiters[id] = ch
		}
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			t.mu.Lock()
			if t.waiters[id] == ch {
				delete(t.waiters, id)
			}
			delete(t.expected, id)
			delete(t.entries, id)
			t.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of stored, unconsumed responses.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
