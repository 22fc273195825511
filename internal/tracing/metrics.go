// Copyright 2026 The Cascade Authors
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
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// MetricsCollector counts pipeline spans, failures, and durations. It
// implements the tracer's Observer interface so it can be registered
// alongside other sinks.
type MetricsCollector struct {
	spansTotal    metric.Int64Counter
	failuresTotal metric.Int64Counter
	spanDuration  metric.Float64Histogram
}

// NewMetricsCollector creates a collector on the given meter provider.
func NewMetricsCollector(mp metric.MeterProvider) (*MetricsCollector, error) {
	meter := mp.Meter("cascade")
	mc := &MetricsCollector{}

	var err error
	mc.spansTotal, err = meter.Int64Counter(
		"cascade_spans_total",
		metric.WithDescription("Total number of completed pipeline and step spans"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.failuresTotal, err = meter.Int64Counter(
		"cascade_span_failures_total",
		metric.WithDescription("Total number of spans that completed with an error"),
		metric.WithUnit("{span}"),
	)
	if err != nil {
		return nil, err
	}

	mc.spanDuration, err = meter.Float64Histogram(
		"cascade_span_duration_ms",
		metric.WithDescription("Span duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// SpanStarted implements trace.Observer.
func (m *MetricsCollector) SpanStarted(traceID string, span *trace.Span) {}

// SpanCompleted implements trace.Observer.
func (m *MetricsCollector) SpanCompleted(traceID string, span *trace.Span) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("pipeline_id", span.PipelineID),
		attribute.String("step_type", span.StepType),
		attribute.String("status", string(span.Status)),
	)

	m.spansTotal.Add(ctx, 1, attrs)
	m.spanDuration.Record(ctx, float64(span.DurationMS), attrs)
	if span.Status == trace.StatusFailed {
		m.failuresTotal.Add(ctx, 1, attrs)
	}
}

// NewMeterProvider creates a meter provider whose metrics are exported
// through a Prometheus reader registered on reg.
func NewMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// MetricsHandler exposes the registry over HTTP for scraping.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
