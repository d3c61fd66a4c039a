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

package harness

import (
	"time"

	"github.com/tombee/hostlink/internal/handlers"
	"github.com/tombee/hostlink/internal/testing/wspeer"
)

// Option configures a Harness.
type Option func(*Harness) error

// WithTimeout bounds every wait in the harness.
// Default is 5 seconds.
//
// Example:
//
//	h := harness.New(t, harness.WithTimeout(time.Second))
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) error {
		h.timeout = d
		return nil
	}
}

// WithExecutor replaces the script executor behind execute_george. The
// default echoes the script back prefixed with "ran: ".
func WithExecutor(e handlers.Executor) Option {
	return func(h *Harness) error {
		h.executor = e
		return nil
	}
}

// WithHostMethod makes the host answer requests for method.
//
// Example:
//
//	h := harness.New(t,
//		harness.WithHostMethod("get_context", func(json.RawMessage) (any, *jsonrpc.Error) {
//			return map[string]string{"project": "demo"}, nil
//		}),
//	)
func WithHostMethod(method string, fn HostMethod) Option {
	return func(h *Harness) error {
		h.hostMethods[method] = fn
		return nil
	}
}

// WithPeerOption passes options to the host's WebSocket server.
func WithPeerOption(opt wspeer.Option) Option {
	return func(h *Harness) error {
		h.peerOpts = append(h.peerOpts, opt)
		return nil
	}
}
