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

/*
Package transport owns the single WebSocket connection between the host and
the remote service.

An Endpoint dials on its own network goroutine, reads frames in a loop and
classifies each one with the jsonrpc codec. Malformed traffic is answered
immediately from the network goroutine. Responses are handed to the Sink's
Deliver method and requests and notifications are queued through Enqueue for
the host goroutine to process.

	ep := transport.NewEndpoint(transport.Config{Sink: sink})
	if err := ep.Connect("ws://127.0.0.1:8765/ws"); err != nil {
		return err
	}
	defer ep.Close()

Lifecycle: Connecting moves to Open or Failed, and Open moves to Closed.
Status transitions happen only on the network goroutine. Close is the only
barrier: once it returns the network goroutine has exited and no hook fires
again.
*/
package transport
