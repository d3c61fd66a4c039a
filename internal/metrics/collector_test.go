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

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestCollector(t *testing.T) (*Collector, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	c, err := NewCollector(mp)
	require.NoError(t, err)
	return c, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestCollector_Counters(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordCall(ctx, "echo", 20*time.Millisecond)
	c.RecordCall(ctx, "echo", 30*time.Millisecond)
	c.RecordNotification(ctx, "log")
	c.RecordInbound(ctx, "request")
	c.RecordInbound(ctx, "invalid")
	c.RecordReply(ctx, "not_found")

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, metrics["hostlink_calls_total"], "method", "echo"))
	assert.Equal(t, int64(1), sumFor(t, metrics["hostlink_notifications_sent_total"], "method", "log"))
	assert.Equal(t, int64(1), sumFor(t, metrics["hostlink_inbound_messages_total"], "kind", "request"))
	assert.Equal(t, int64(1), sumFor(t, metrics["hostlink_inbound_messages_total"], "kind", "invalid"))
	assert.Equal(t, int64(1), sumFor(t, metrics["hostlink_replies_total"], "outcome", "not_found"))

	hist, ok := metrics["hostlink_call_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestCollector_ObservableGauges(t *testing.T) {
	c, reader := newTestCollector(t)

	c.ObserveQueueDepth(func() int64 { return 4 })
	c.ObserveConnectionStatus(func() int64 { return 2 })

	metrics := collect(t, reader)

	depth, ok := metrics["hostlink_inbound_queue_depth"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, depth.DataPoints, 1)
	assert.Equal(t, int64(4), depth.DataPoints[0].Value)

	status, ok := metrics["hostlink_connection_status"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, status.DataPoints, 1)
	assert.Equal(t, int64(2), status.DataPoints[0].Value)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.RecordCall(ctx, "echo", time.Millisecond)
		c.RecordNotification(ctx, "log")
		c.RecordInbound(ctx, "request")
		c.RecordReply(ctx, "success")
		c.RecordSendDropped(ctx)
		c.ObserveQueueDepth(nil)
	})
}

func TestProvider_Handler(t *testing.T) {
	p, err := NewProvider("hostlink-test", "0.0.0")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.Collector().RecordSendDropped(context.Background())

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hostlink_send_dropped_total")
	assert.NotNil(t, p.Tracer("hostlink"))
}
