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
Package jsonrpc implements the JSON-RPC 2.0 message codec used by the host link.

Inbound text is classified into one of three entities:

	{"id": 1, "method": "ping", "params": {...}}   // *Request
	{"method": "progress", "params": [...]}        // *Notification
	{"id": 1, "result": true}                      // *Response

Text that cannot be classified is reported as an error value that knows how to
build its own reply:

	entity, err := jsonrpc.Parse(data)
	var perr jsonrpc.ProtocolError
	if errors.As(err, &perr) {
	    reply := perr.Reply() // error Response, code -32700 / -32600 / -32602
	}

The "jsonrpc" member is not required on input. Some peers omit it, so a
missing or unexpected version tag never rejects a message. Output always
carries "jsonrpc": "2.0".
*/
package jsonrpc
