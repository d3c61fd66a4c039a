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

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version written on every outbound message.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Kind identifies the type of a parsed entity.
type Kind int

const (
	// KindRequest is a call that expects a correlated Response.
	KindRequest Kind = iota + 1

	// KindNotification is a call without an id. It is never answered.
	KindNotification

	// KindResponse is the answer to a Request.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Entity is a parsed JSON-RPC message: *Request, *Notification or *Response.
type Entity interface {
	Kind() Kind
}

// Request is a call expecting a Response with the same ID.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Notification is a call without an id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Response carries either Result or Error for the request with the same ID.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Kind implements Entity.
func (*Request) Kind() Kind { return KindRequest }

// Kind implements Entity.
func (*Notification) Kind() Kind { return KindNotification }

// Kind implements Entity.
func (*Response) Kind() Kind { return KindResponse }

// NewRequest creates a request, marshaling params unless they are already raw JSON.
func NewRequest(id ID, method string, params any) (*Request, error) {
	raw, err := marshalValue(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification creates a notification.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalValue(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Notification{Method: method, Params: raw}, nil
}

// NewResponse creates a success response. A nil result is sent as null.
func NewResponse(id ID, result any) (*Response, error) {
	raw, err := marshalValue(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id ID, code int, message string) *Response {
	return &Response{
		ID:    id,
		Error: &Error{Code: code, Message: message},
	}
}

// IsError reports whether the response carries an error object.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// IsEmpty reports whether the response is the zero value returned when the
// link is disabled.
func (r *Response) IsEmpty() bool {
	return r.ID.IsZero() && r.Result == nil && r.Error == nil
}

// UnmarshalResult unmarshals the result into v.
func (r *Response) UnmarshalResult(v any) error {
	if r.Result == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// UnmarshalParams unmarshals the params into v.
func (r *Request) UnmarshalParams(v any) error {
	if r.Params == nil {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type wireNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type wireResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type wireError struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Error   *Error `json:"error"`
}

// MarshalJSON implements json.Marshaler.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{JSONRPC: Version, ID: r.ID, Method: r.Method, Params: r.Params})
}

// MarshalJSON implements json.Marshaler.
func (n *Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireNotification{JSONRPC: Version, Method: n.Method, Params: n.Params})
}

// MarshalJSON implements json.Marshaler. Success responses always carry a
// result member, null when empty.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(wireError{JSONRPC: Version, ID: r.ID, Error: r.Error})
	}
	result := r.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return json.Marshal(wireResult{JSONRPC: Version, ID: r.ID, Result: result})
}

func marshalValue(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
