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

// Package tracing mirrors pipeline execution spans onto OpenTelemetry
// and Prometheus, so standard observability tooling can consume traces
// recorded by the pipeline tracer.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// Provider owns the OpenTelemetry tracer provider for the process.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// ProviderConfig configures the OpenTelemetry provider.
type ProviderConfig struct {
	// ServiceName and ServiceVersion identify the service resource.
	ServiceName    string
	ServiceVersion string

	// ConsoleExport prints finished spans through the stdouttrace
	// exporter.
	ConsoleExport bool
}

// NewProvider creates and installs a tracer provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.ConsoleExport {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Bridge replays completed pipeline spans as OpenTelemetry spans. It
// implements the tracer's Observer interface.
type Bridge struct {
	tracer oteltrace.Tracer
}

// NewBridge creates a bridge over the provider's tracer.
func NewBridge(p *Provider) *Bridge {
	return &Bridge{tracer: p.tp.Tracer("cascade")}
}

// SpanStarted implements trace.Observer. Spans are emitted on
// completion, once timestamps and status are known.
func (b *Bridge) SpanStarted(traceID string, span *trace.Span) {}

// SpanCompleted implements trace.Observer.
func (b *Bridge) SpanCompleted(traceID string, span *trace.Span) {
	name := span.PipelineID
	if span.StepName != "" {
		name = span.PipelineID + "." + span.StepName
	}

	_, otelSpan := b.tracer.Start(context.Background(), name,
		oteltrace.WithTimestamp(span.StartTime),
		oteltrace.WithAttributes(
			attribute.String("cascade.trace_id", traceID),
			attribute.String("cascade.span_id", span.ID),
			attribute.String("cascade.pipeline_id", span.PipelineID),
			attribute.String("cascade.step_type", span.StepType),
			attribute.Int("cascade.depth", span.Depth),
		),
	)
	if span.Status == trace.StatusFailed {
		otelSpan.SetStatus(codes.Error, span.Error)
	} else {
		otelSpan.SetStatus(codes.Ok, "")
	}
	otelSpan.End(oteltrace.WithTimestamp(span.EndTime))
}
