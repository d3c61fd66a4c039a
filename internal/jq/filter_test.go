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

package jq

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		input      string
		want       string
	}{
		{"identity", ".", `{"seq":3}`, `{"seq":3}`},
		{"field", ".seq", `{"seq":3}`, `3`},
		{"multiple outputs", ".[]", `[1,2]`, `[1,2]`},
		{"no output", "empty", `true`, `null`},
		{"null input", ".", ``, `null`},
		{"construct", "{ok: .}", `true`, `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expression, 0, 0)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}

			got, err := f.Apply(context.Background(), json.RawMessage(tt.input))
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}

			gotJSON, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("failed to marshal result: %v", err)
			}
			if string(gotJSON) != tt.want {
				t.Errorf("Apply() = %s, want %s", gotJSON, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, expr := range []string{".[", "undefined_function(1)"} {
		if _, err := Compile(expr, 0, 0); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestFilter_RuntimeError(t *testing.T) {
	f, err := Compile(".foo", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Apply(context.Background(), json.RawMessage(`[1]`)); err == nil {
		t.Error("expected error indexing an array with a string")
	}
}

func TestFilter_MaxInputSize(t *testing.T) {
	f, err := Compile(".", 0, 8)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.Apply(context.Background(), json.RawMessage(`"a long string"`))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestFilter_String(t *testing.T) {
	f, err := Compile(".result", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.String() != ".result" {
		t.Errorf("String() = %q", f.String())
	}
}
