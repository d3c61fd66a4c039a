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

// Package inbox queues inbound requests and notifications until the host
// drains them.
package inbox

import (
	"sync"
)

// Queue defines the interface for inbound message queues.
type Queue interface {
	// Push appends raw message text to the back of the queue.
	Push(raw []byte) error

	// Pop removes and returns the message at the front of the queue.
	// It never blocks; ok is false when the queue is empty.
	Pop() (raw []byte, ok bool)

	// Len returns the number of queued messages.
	Len() int

	// Close closes the queue. Queued messages can still be popped.
	Close() error

	// Open lets a closed queue accept messages again.
	Open()
}

// MemoryQueue is an unbounded in-memory FIFO.
type MemoryQueue struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

// NewMemoryQueue creates a new in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		messages: make([][]byte, 0),
	}
}

// Push appends a copy of raw to the queue.
func (q *MemoryQueue) Push(raw []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	msg := make([]byte, len(raw))
	copy(msg, raw)
	q.messages = append(q.messages, msg)
	return nil
}

// Pop removes and returns the oldest message.
func (q *MemoryQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil, false
	}
	msg := q.messages[0]
	q.messages[0] = nil
	q.messages = q.messages[1:]
	return msg, true
}

// Len returns the number of queued messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close stops the queue from accepting new messages.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Open lets a closed queue accept messages again.
func (q *MemoryQueue) Open() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// ErrQueueClosed is returned when pushing to a closed queue.
var ErrQueueClosed = &QueueError{message: "inbox: queue is closed"}

// QueueError represents a queue-related error.
type QueueError struct {
	message string
}

func (e *QueueError) Error() string {
	return e.message
}
