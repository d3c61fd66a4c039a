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

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/hostlink/internal/config"
)

func TestNewExporter_None(t *testing.T) {
	exp, err := NewExporter(context.Background(), config.TracingConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, exp)
	assert.Empty(t, ProviderOptions(exp))
}

func TestNewExporter_Console(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewExporter(context.Background(), config.TracingConfig{Exporter: ExporterConsole}, &buf)
	require.NoError(t, err)
	require.NotNil(t, exp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "hostlink.call ping")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "hostlink.call ping")
}

func TestNewExporter_OTLP(t *testing.T) {
	// Both OTLP exporters connect lazily, so construction succeeds without
	// a collector.
	for _, name := range []string{ExporterOTLP, ExporterOTLPHTTP} {
		t.Run(name, func(t *testing.T) {
			exp, err := NewExporter(context.Background(), config.TracingConfig{
				Exporter: name,
				Endpoint: "127.0.0.1:4317",
				Insecure: true,
				Headers:  map[string]string{"x-team": "pipeline"},
			}, nil)
			require.NoError(t, err)
			require.NotNil(t, exp)
			assert.Len(t, ProviderOptions(exp), 1)
		})
	}
}

func TestNewExporter_Unknown(t *testing.T) {
	_, err := NewExporter(context.Background(), config.TracingConfig{Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, "zipkin")
}
