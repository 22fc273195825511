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

package trace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/pipeline/guard"
)

func TestStartSpan_NewTrace(t *testing.T) {
	tr := NewTracer()
	execCtx := guard.NewExecutionContext("root", nil, 2)

	trc := tr.StartSpan("root", execCtx, nil, nil)
	require.NotNil(t, trc)
	assert.NotEmpty(t, trc.TraceID)
	require.Len(t, trc.Spans, 1)

	span := trc.CurrentSpan()
	require.NotNil(t, span)
	assert.Equal(t, "root", span.PipelineID)
	assert.Equal(t, StatusRunning, span.Status)
	assert.Empty(t, span.ParentSpanID)
	assert.Equal(t, 0, span.Depth)
}

func TestStartSpan_ExtendsTraceWithStackDiscipline(t *testing.T) {
	tr := NewTracer()
	root := guard.NewExecutionContext("outer", nil, 1)
	child := guard.NewExecutionContext("inner", root, 1)

	trc := tr.StartSpan("outer", root, nil, nil)
	outerID := trc.CurrentSpanID

	trc2 := tr.StartSpan("inner", child, nil, trc)
	assert.Same(t, trc, trc2)

	inner := trc.CurrentSpan()
	assert.Equal(t, outerID, inner.ParentSpanID)
	assert.Equal(t, 1, inner.Depth)

	tr.CompleteSpan(trc, nil)
	assert.Equal(t, outerID, trc.CurrentSpanID)

	tr.CompleteSpan(trc, nil)
	assert.Empty(t, trc.CurrentSpanID)
}

func TestCompleteSpan_RecordsFailure(t *testing.T) {
	tr := NewTracer()
	trc := tr.StartSpan("p", guard.NewExecutionContext("p", nil, 1), nil, nil)
	spanID := trc.CurrentSpanID

	tr.CompleteSpan(trc, fmt.Errorf("provider unavailable"))

	span := trc.Spans[spanID]
	assert.Equal(t, StatusFailed, span.Status)
	assert.Equal(t, "provider unavailable", span.Error)
	assert.False(t, span.EndTime.IsZero())
	assert.GreaterOrEqual(t, span.DurationMS, int64(0))
}

func TestCompleteSpan_NoCurrentSpanIsNoOp(t *testing.T) {
	tr := NewTracer()
	trc := tr.StartSpan("p", nil, nil, nil)
	tr.CompleteSpan(trc, nil)

	require.NotPanics(t, func() { tr.CompleteSpan(trc, nil) })
	require.NotPanics(t, func() { tr.CompleteSpan(nil, nil) })
}

func TestStartSpan_SanitizedMetadata(t *testing.T) {
	tr := NewTracer()
	execCtx := guard.NewExecutionContext("etl", nil, 3)
	require.NoError(t, execCtx.Scope.SetVariables(map[string]interface{}{"a": 1, "b": 2}, "global"))

	step := &StepInfo{Name: "fetch", Type: "task", Index: 1}
	trc := tr.StartSpan("etl", execCtx, step, nil)

	span := trc.CurrentSpan()
	assert.Equal(t, "fetch", span.StepName)
	assert.Equal(t, "task", span.StepType)

	md := span.Metadata
	assert.Equal(t, "etl", md["pipeline_id"])
	assert.Equal(t, 0, md["depth"])
	assert.Equal(t, false, md["has_parent"])
	assert.Equal(t, "fetch", md["step_name"])
	assert.Equal(t, "task", md["step_type"])
	assert.Equal(t, 1, md["step_index"])
	assert.Equal(t, 2, md["context_size"])

	// Only the sanitized descriptor fields appear, never step
	// configuration or result payloads.
	for key := range md {
		assert.Contains(t, []string{
			"pipeline_id", "depth", "has_parent", "step_name", "step_type", "step_index", "context_size",
		}, key)
	}
}

func TestStartSpan_ConcurrentSiblingsDoNotCollide(t *testing.T) {
	tr := NewTracer()
	trc := tr.StartSpan("root", guard.NewExecutionContext("root", nil, 1), nil, nil)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tr.StartSpan(fmt.Sprintf("sibling-%d", i), nil, nil, trc)
		}(i)
	}
	wg.Wait()

	trc.mu.RLock()
	defer trc.mu.RUnlock()
	assert.Len(t, trc.Spans, n+1)
}

type recordingObserver struct {
	mu        sync.Mutex
	started   int
	completed int
}

func (r *recordingObserver) SpanStarted(traceID string, span *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recordingObserver) SpanCompleted(traceID string, span *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func TestTracer_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	tr := NewTracer().WithObserver(obs)

	trc := tr.StartSpan("p", nil, nil, nil)
	tr.CompleteSpan(trc, nil)

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, 1, obs.completed)
}
