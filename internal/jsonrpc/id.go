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
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidID is returned when an id is neither an integer, a string nor null.
var ErrInvalidID = errors.New("jsonrpc: invalid id")

type idKind uint8

const (
	idAbsent idKind = iota
	idInt
	idString
)

// ID is a JSON-RPC request identifier: absent, an integer or a string.
// The zero value is the absent id used by notifications and by error
// replies to messages whose id could not be read.
type ID struct {
	kind idKind
	num  int64
	str  string
}

// IntID returns an integer id.
func IntID(n int64) ID {
	return ID{kind: idInt, num: n}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{kind: idString, str: s}
}

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool {
	return id.kind == idAbsent
}

// Int64 returns the integer value and true for integer ids.
func (id ID) Int64() (int64, bool) {
	return id.num, id.kind == idInt
}

// Str returns the string value and true for string ids.
func (id ID) Str() (string, bool) {
	return id.str, id.kind == idString
}

// String formats the id the way it appears on the wire.
func (id ID) String() string {
	switch id.kind {
	case idInt:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idInt:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers, booleans,
// arrays and objects are rejected with ErrInvalidID.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		*id = StringID(s)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	num, ok := v.(json.Number)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidID, data)
	}
	n, err := num.Int64()
	if err != nil {
		return fmt.Errorf("%w: %s is not an integer", ErrInvalidID, num)
	}
	*id = IntID(n)
	return nil
}
