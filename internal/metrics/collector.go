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

// Package metrics exposes hostlink's OpenTelemetry instruments and the
// Prometheus endpoint that serves them.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector records link activity. A nil *Collector is valid and records
// nothing.
type Collector struct {
	meter metric.Meter

	// Counters
	callsTotal         metric.Int64Counter
	notificationsTotal metric.Int64Counter
	inboundTotal       metric.Int64Counter
	repliesTotal       metric.Int64Counter
	sendDroppedTotal   metric.Int64Counter

	// Histograms
	callDuration metric.Float64Histogram

	// Gauges (observable, read through callbacks)
	mu         sync.RWMutex
	queueDepth func() int64
	status     func() int64
}

// NewCollector registers hostlink's instruments on meterProvider.
func NewCollector(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("hostlink")

	c := &Collector{meter: meter}

	var err error

	c.callsTotal, err = meter.Int64Counter(
		"hostlink_calls_total",
		metric.WithDescription("Total number of outbound method calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	c.notificationsTotal, err = meter.Int64Counter(
		"hostlink_notifications_sent_total",
		metric.WithDescription("Total number of outbound notifications"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	c.inboundTotal, err = meter.Int64Counter(
		"hostlink_inbound_messages_total",
		metric.WithDescription("Total number of inbound messages by kind"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	c.repliesTotal, err = meter.Int64Counter(
		"hostlink_replies_total",
		metric.WithDescription("Total number of replies sent for inbound requests"),
		metric.WithUnit("{reply}"),
	)
	if err != nil {
		return nil, err
	}

	c.sendDroppedTotal, err = meter.Int64Counter(
		"hostlink_send_dropped_total",
		metric.WithDescription("Total number of sends dropped because the connection was not open"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	c.callDuration, err = meter.Float64Histogram(
		"hostlink_call_duration_seconds",
		metric.WithDescription("Outbound method call round-trip time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"hostlink_inbound_queue_depth",
		metric.WithDescription("Number of inbound requests waiting for the host"),
		metric.WithUnit("{message}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			c.mu.RLock()
			fn := c.queueDepth
			c.mu.RUnlock()
			if fn != nil {
				observer.Observe(fn())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"hostlink_connection_status",
		metric.WithDescription("Connection state: 0 none, 1 connecting, 2 open, 3 failed, 4 closed"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			c.mu.RLock()
			fn := c.status
			c.mu.RUnlock()
			if fn != nil {
				observer.Observe(fn())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// RecordCall records a completed outbound call.
func (c *Collector) RecordCall(ctx context.Context, method string, duration time.Duration) {
	if c == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method))
	c.callsTotal.Add(ctx, 1, attrs)
	c.callDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordNotification records an outbound notification.
func (c *Collector) RecordNotification(ctx context.Context, method string) {
	if c == nil {
		return
	}
	c.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordInbound records an inbound message. kind is request, notification,
// response or invalid.
func (c *Collector) RecordInbound(ctx context.Context, kind string) {
	if c == nil {
		return
	}
	c.inboundTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordReply records a reply to an inbound request. outcome is success,
// error, not_found or crashed.
func (c *Collector) RecordReply(ctx context.Context, outcome string) {
	if c == nil {
		return
	}
	c.repliesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSendDropped records a send attempted without an open connection.
func (c *Collector) RecordSendDropped(ctx context.Context) {
	if c == nil {
		return
	}
	c.sendDroppedTotal.Add(ctx, 1)
}

// ObserveQueueDepth sets the source of the inbound queue depth gauge.
func (c *Collector) ObserveQueueDepth(fn func() int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth = fn
}

// ObserveConnectionStatus sets the source of the connection status gauge.
func (c *Collector) ObserveConnectionStatus(fn func() int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = fn
}
