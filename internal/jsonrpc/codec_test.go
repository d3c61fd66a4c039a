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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Classification(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
	}{
		{
			name:     "request with version",
			input:    `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"seq":1}}`,
			wantKind: KindRequest,
		},
		{
			name:     "request without version",
			input:    `{"id":7,"method":"echo","params":["hi"]}`,
			wantKind: KindRequest,
		},
		{
			name:     "request with string id",
			input:    `{"id":"abc","method":"echo"}`,
			wantKind: KindRequest,
		},
		{
			name:     "notification",
			input:    `{"method":"progress","params":[1,2]}`,
			wantKind: KindNotification,
		},
		{
			name:     "notification with null id",
			input:    `{"id":null,"method":"progress"}`,
			wantKind: KindNotification,
		},
		{
			name:     "success response",
			input:    `{"id":3,"result":true}`,
			wantKind: KindResponse,
		},
		{
			name:     "null result response",
			input:    `{"jsonrpc":"2.0","id":3,"result":null}`,
			wantKind: KindResponse,
		},
		{
			name:     "error response",
			input:    `{"id":3,"error":{"code":-32601,"message":"nope"}}`,
			wantKind: KindResponse,
		},
		{
			name:     "error response without id",
			input:    `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			wantKind: KindResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, entity.Kind())
		})
	}
}

func TestParse_RequestFields(t *testing.T) {
	entity, err := Parse([]byte(`{"id":7,"method":"echo","params":["hi"]}`))
	require.NoError(t, err)

	req, ok := entity.(*Request)
	require.True(t, ok)

	id, isInt := req.ID.Int64()
	assert.True(t, isInt)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "echo", req.Method)
	assert.JSONEq(t, `["hi"]`, string(req.Params))

	var params []string
	require.NoError(t, req.UnmarshalParams(&params))
	assert.Equal(t, []string{"hi"}, params)
}

func TestParse_MalformedJSON(t *testing.T) {
	inputs := []string{
		`{`,
		`{"id":1,"method":}`,
		`not json`,
		``,
		`{"id":1,"method":"a"}}`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			entity, err := Parse([]byte(input))
			require.Error(t, err)
			assert.Nil(t, entity)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %T", err)

			reply := parseErr.Reply()
			require.NotNil(t, reply.Error)
			assert.Equal(t, CodeParseError, reply.Error.Code)
			assert.True(t, reply.ID.IsZero())
		})
	}
}

func TestParse_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode int
		wantID   ID
	}{
		{
			name:     "array payload",
			input:    `[1,2,3]`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "null payload",
			input:    `null`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "no method or result",
			input:    `{"id":4}`,
			wantCode: CodeInvalidRequest,
			wantID:   IntID(4),
		},
		{
			name:     "numeric method",
			input:    `{"id":5,"method":12}`,
			wantCode: CodeInvalidRequest,
			wantID:   IntID(5),
		},
		{
			name:     "fractional id",
			input:    `{"id":1.5,"method":"echo"}`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "boolean id",
			input:    `{"id":true,"method":"echo"}`,
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "scalar params",
			input:    `{"id":"x","method":"echo","params":42}`,
			wantCode: CodeInvalidParams,
			wantID:   StringID("x"),
		},
		{
			name:     "malformed error object",
			input:    `{"id":9,"error":"boom"}`,
			wantCode: CodeInvalidRequest,
			wantID:   IntID(9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr), "expected RequestError, got %T", err)
			assert.Equal(t, tt.wantCode, reqErr.Code)

			reply := reqErr.Reply()
			assert.Equal(t, tt.wantID, reply.ID)
			assert.Equal(t, tt.wantCode, reply.Error.Code)
		})
	}
}

func TestMarshal_ResponseRoundTrip(t *testing.T) {
	inputs := []string{
		`{"jsonrpc":"2.0","id":7,"result":["hi"]}`,
		`{"jsonrpc":"2.0","id":3,"result":true}`,
		`{"jsonrpc":"2.0","id":"s-1","result":{"seq":4}}`,
		`{"jsonrpc":"2.0","id":12,"error":{"code":-32601,"message":"Method \"x\" not found"}}`,
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error","data":"unexpected end of JSON input"}}`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			entity, err := Parse([]byte(input))
			require.NoError(t, err)

			out, err := Marshal(entity)
			require.NoError(t, err)
			assert.JSONEq(t, input, string(out))
		})
	}
}

func TestMarshal_Entities(t *testing.T) {
	req, err := NewRequest(IntID(1), "loader_tool", []any{})
	require.NoError(t, err)
	data, err := Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"loader_tool","params":[]}`, string(data))

	notif, err := NewNotification("progress", map[string]int{"done": 2})
	require.NoError(t, err)
	data, err = Marshal(notif)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"progress","params":{"done":2}}`, string(data))

	resp, err := NewResponse(IntID(2), nil)
	require.NoError(t, err)
	data, err = Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":null}`, string(data))

	errResp := NewErrorResponse(IntID(3), CodeMethodNotFound, "missing")
	data, err = Marshal(errResp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"missing"}}`, string(data))
}

func TestNewRequest_RawParamsPassThrough(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	req, err := NewRequest(IntID(1), "m", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, req.Params)
}

func TestNewRequest_UnmarshalableParams(t *testing.T) {
	_, err := NewRequest(IntID(1), "m", make(chan int))
	assert.Error(t, err)
}

func TestResponse_IsEmpty(t *testing.T) {
	var resp Response
	assert.True(t, resp.IsEmpty())
	assert.False(t, resp.IsError())

	ok, err := NewResponse(IntID(1), true)
	require.NoError(t, err)
	assert.False(t, ok.IsEmpty())

	var result bool
	require.NoError(t, ok.UnmarshalResult(&result))
	assert.True(t, result)
}

func TestID_JSON(t *testing.T) {
	tests := []struct {
		input string
		want  ID
		str   string
	}{
		{input: `1`, want: IntID(1), str: "1"},
		{input: `-4`, want: IntID(-4), str: "-4"},
		{input: `"abc"`, want: StringID("abc"), str: `"abc"`},
		{input: `null`, want: ID{}, str: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))
			assert.Equal(t, tt.want, id)
			assert.Equal(t, tt.str, id.String())

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(out))
		})
	}

	var id ID
	assert.ErrorIs(t, json.Unmarshal([]byte(`2.5`), &id), ErrInvalidID)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{}`), &id), ErrInvalidID)
}
