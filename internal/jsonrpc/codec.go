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
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolError is implemented by parse failures that must be answered with
// an error Response.
type ProtocolError interface {
	error
	Reply() *Response
}

// ParseError reports text that is not valid JSON.
type ParseError struct {
	Detail string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonrpc: parse error: %s", e.Detail)
}

// Reply returns the -32700 error response for this failure.
func (e *ParseError) Reply() *Response {
	return errorReply(ID{}, CodeParseError, "Parse error", e.Detail)
}

// RequestError reports valid JSON that is not a well-formed message.
// ID is set when it could be read from the input.
type RequestError struct {
	ID      ID
	Code    int
	Message string
	Detail  string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("jsonrpc: %s (%d): %s", e.Message, e.Code, e.Detail)
}

// Reply returns the error response for this failure, echoing the id.
func (e *RequestError) Reply() *Response {
	return errorReply(e.ID, e.Code, e.Message, e.Detail)
}

func errorReply(id ID, code int, message, detail string) *Response {
	resp := NewErrorResponse(id, code, message)
	if detail != "" {
		if data, err := json.Marshal(detail); err == nil {
			resp.Error.Data = data
		}
	}
	return resp
}

func invalidRequest(id ID, format string, args ...any) *RequestError {
	return &RequestError{
		ID:      id,
		Code:    CodeInvalidRequest,
		Message: "Invalid request",
		Detail:  fmt.Sprintf(format, args...),
	}
}

// Parse classifies data as a *Request, *Notification or *Response.
//
// Invalid JSON yields a *ParseError. Valid JSON that is not a well-formed
// message yields a *RequestError. A missing "jsonrpc" member is accepted.
func Parse(data []byte) (Entity, error) {
	if !json.Valid(data) {
		return nil, &ParseError{Detail: describeSyntaxError(data)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, invalidRequest(ID{}, "message is not a JSON object")
	}

	var id ID
	if raw, ok := fields["id"]; ok {
		if err := id.UnmarshalJSON(raw); err != nil {
			return nil, invalidRequest(ID{}, "%v", err)
		}
	}

	_, hasMethod := fields["method"]
	result, hasResult := fields["result"]
	errRaw, hasError := fields["error"]

	switch {
	case !hasMethod && (hasResult || hasError):
		return parseResponse(id, result, hasResult, errRaw, hasError)
	case hasMethod:
		return parseCall(id, fields["method"], fields["params"])
	default:
		return nil, invalidRequest(id, "message has neither method nor result")
	}
}

func parseResponse(id ID, result json.RawMessage, hasResult bool, errRaw json.RawMessage, hasError bool) (Entity, error) {
	resp := &Response{ID: id}

	if hasError && !isNull(errRaw) {
		var rpcErr Error
		if err := json.Unmarshal(errRaw, &rpcErr); err != nil {
			return nil, invalidRequest(id, "malformed error object: %v", err)
		}
		resp.Error = &rpcErr
		return resp, nil
	}

	if !hasResult {
		return nil, invalidRequest(id, "response has neither result nor error")
	}
	resp.Result = result
	return resp, nil
}

func parseCall(id ID, methodRaw, paramsRaw json.RawMessage) (Entity, error) {
	var method string
	if err := json.Unmarshal(methodRaw, &method); err != nil || method == "" {
		return nil, invalidRequest(id, "method must be a non-empty string")
	}

	params := bytes.TrimSpace(paramsRaw)
	if len(params) > 0 {
		switch params[0] {
		case '[', '{':
		case 'n':
			params = nil
		default:
			return nil, &RequestError{
				ID:      id,
				Code:    CodeInvalidParams,
				Message: "Invalid params",
				Detail:  "params must be an array or an object",
			}
		}
	}
	if len(params) == 0 {
		params = nil
	}

	if id.IsZero() {
		return &Notification{Method: method, Params: json.RawMessage(params)}, nil
	}
	return &Request{ID: id, Method: method, Params: json.RawMessage(params)}, nil
}

// Marshal serializes an entity. It does not fail for entities built by this
// package.
func Marshal(e Entity) ([]byte, error) {
	return json.Marshal(e)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func describeSyntaxError(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err.Error()
	}
	return "invalid JSON"
}
