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

// Package trace records one span per pipeline or step invocation,
// linked by parent pointers, and reconstructs call trees for
// visualization and summary statistics. Span creation is safe under
// concurrent callers extending the same trace.
package trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/pipeline/guard"
)

// Status is the lifecycle state of a span.
type Status string

const (
	// StatusRunning means the span is open.
	StatusRunning Status = "running"
	// StatusCompleted means the span closed successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the span closed with an error.
	StatusFailed Status = "failed"
)

// Span is one recorded interval of execution: a pipeline invocation or
// a single step. Closed exactly once.
type Span struct {
	ID           string                 `json:"id"`
	PipelineID   string                 `json:"pipeline_id"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	Depth        int                    `json:"depth"`
	StepName     string                 `json:"step_name,omitempty"`
	StepType     string                 `json:"step_type,omitempty"`
	Status       Status                 `json:"status"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time,omitzero"`
	DurationMS   int64                  `json:"duration_ms"`
	Error        string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// StepInfo is the sanitized step descriptor captured in span metadata:
// name and type only, never step configuration or result payloads.
type StepInfo struct {
	Name  string
	Type  string
	Index int
}

// Trace is the full set of spans for one root pipeline run, including
// all nested invocations. CurrentSpanID behaves like the top of a call
// stack.
type Trace struct {
	mu sync.RWMutex

	TraceID       string
	Spans         map[string]*Span
	CurrentSpanID string
	StartTime     time.Time
}

// SpanSnapshot returns a copy of all spans, safe to read while the
// trace is still being extended.
func (t *Trace) SpanSnapshot() []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Span, 0, len(t.Spans))
	for _, s := range t.Spans {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// CurrentSpan returns the open span at the top of the logical call
// stack, or nil.
func (t *Trace) CurrentSpan() *Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Spans[t.CurrentSpanID]
}

// Observer receives span lifecycle notifications, letting external
// sinks (OpenTelemetry, metrics, storage) mirror the trace without the
// tracer knowing about them.
type Observer interface {
	// SpanStarted is called after a span is registered on a trace.
	SpanStarted(traceID string, span *Span)

	// SpanCompleted is called after a span is closed.
	SpanCompleted(traceID string, span *Span)
}

// Tracer creates and closes spans.
type Tracer struct {
	logger    *slog.Logger
	observers []Observer
}

// NewTracer creates a tracer.
func NewTracer() *Tracer {
	return &Tracer{logger: slog.Default()}
}

// WithLogger sets a custom logger for the tracer.
func (tr *Tracer) WithLogger(logger *slog.Logger) *Tracer {
	tr.logger = logger
	return tr
}

// WithObserver registers a span lifecycle observer.
func (tr *Tracer) WithObserver(obs Observer) *Tracer {
	tr.observers = append(tr.observers, obs)
	return tr
}

// StartSpan opens a span for a pipeline or step invocation. With no
// parent trace a new trace is allocated; otherwise the span extends the
// existing trace, its parent set to the trace's current span, and
// becomes the new current span.
//
// Metadata captures nesting depth, pipeline id, step index, whether a
// parent context exists, the sanitized step descriptor, and the size of
// the live variable scope. Step configuration and results never enter
// metadata.
func (tr *Tracer) StartSpan(pipelineID string, execCtx *guard.ExecutionContext, step *StepInfo, parent *Trace) *Trace {
	now := time.Now()

	t := parent
	if t == nil {
		t = &Trace{
			TraceID:   uuid.NewString(),
			Spans:     make(map[string]*Span),
			StartTime: now,
		}
	}

	span := &Span{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Status:     StatusRunning,
		StartTime:  now,
		Metadata:   buildMetadata(pipelineID, execCtx, step),
	}
	if execCtx != nil {
		span.Depth = execCtx.NestingDepth
	}
	if step != nil {
		span.StepName = step.Name
		span.StepType = step.Type
	}

	t.mu.Lock()
	span.ParentSpanID = t.CurrentSpanID
	t.Spans[span.ID] = span
	t.CurrentSpanID = span.ID
	t.mu.Unlock()

	tr.logger.Debug("span started",
		"trace_id", t.TraceID,
		"span_id", span.ID,
		"pipeline_id", pipelineID,
		"depth", span.Depth,
		"step", span.StepName,
	)
	for _, obs := range tr.observers {
		obs.SpanStarted(t.TraceID, span)
	}
	return t
}

// CompleteSpan closes the trace's current span: completed when err is
// nil, failed with the error detail attached otherwise. The current
// span pointer moves back to the closed span's parent. No-op if there
// is no current span.
func (tr *Tracer) CompleteSpan(t *Trace, err error) {
	if t == nil {
		return
	}

	t.mu.Lock()
	span, ok := t.Spans[t.CurrentSpanID]
	if !ok {
		t.mu.Unlock()
		return
	}
	span.EndTime = time.Now()
	span.DurationMS = span.EndTime.Sub(span.StartTime).Milliseconds()
	if err != nil {
		span.Status = StatusFailed
		span.Error = err.Error()
	} else {
		span.Status = StatusCompleted
	}
	t.CurrentSpanID = span.ParentSpanID
	t.mu.Unlock()

	tr.logger.Debug("span completed",
		"trace_id", t.TraceID,
		"span_id", span.ID,
		"status", span.Status,
		"duration_ms", span.DurationMS,
	)
	for _, obs := range tr.observers {
		obs.SpanCompleted(t.TraceID, span)
	}
}

// buildMetadata assembles the sanitized metadata map for a span.
func buildMetadata(pipelineID string, execCtx *guard.ExecutionContext, step *StepInfo) map[string]interface{} {
	md := map[string]interface{}{
		"pipeline_id": pipelineID,
	}
	if execCtx != nil {
		md["depth"] = execCtx.NestingDepth
		md["has_parent"] = execCtx.Parent != nil
		if execCtx.Scope != nil {
			md["context_size"] = execCtx.Scope.Size()
		}
	}
	if step != nil {
		md["step_name"] = step.Name
		md["step_type"] = step.Type
		md["step_index"] = step.Index
	}
	return md
}
