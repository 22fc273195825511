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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureTrace builds the four-span shape
// root → {c1 → g1, c2} with known durations and statuses.
func fixtureTrace() *Trace {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mk := func(id, parent, pipeline string, depth int, durMS int64, status Status, offset time.Duration) *Span {
		return &Span{
			ID:           id,
			PipelineID:   pipeline,
			ParentSpanID: parent,
			Depth:        depth,
			Status:       status,
			StartTime:    base.Add(offset),
			DurationMS:   durMS,
		}
	}
	return &Trace{
		TraceID: "trace-1",
		Spans: map[string]*Span{
			"root": mk("root", "", "main", 0, 100, StatusCompleted, 0),
			"c1":   mk("c1", "root", "enrich", 1, 40, StatusCompleted, time.Millisecond),
			"c2":   mk("c2", "root", "report", 1, 20, StatusFailed, 2*time.Millisecond),
			"g1":   mk("g1", "c1", "lookup", 2, 10, StatusCompleted, 3*time.Millisecond),
		},
		StartTime: base,
	}
}

func TestBuildExecutionTree_Shape(t *testing.T) {
	tree := BuildExecutionTree(fixtureTrace())
	require.NotNil(t, tree)

	assert.Equal(t, "main", tree.PipelineID)
	require.Len(t, tree.Children, 2)

	first := tree.Children[0]
	assert.Equal(t, "enrich", first.PipelineID)
	require.Len(t, first.Children, 1)
	assert.Equal(t, "lookup", first.Children[0].PipelineID)

	second := tree.Children[1]
	assert.Equal(t, "report", second.PipelineID)
	assert.Empty(t, second.Children)

	assert.Equal(t, 4, tree.StepCount)
	assert.Equal(t, 2, tree.MaxDepth)
	assert.Equal(t, int64(170), tree.TotalDurationMS)

	// Subtree aggregates.
	assert.Equal(t, int64(50), first.TotalDurationMS)
	assert.Equal(t, 2, first.StepCount)
}

func TestBuildExecutionTree_MultipleRoots(t *testing.T) {
	trc := fixtureTrace()
	trc.Spans["r2"] = &Span{
		ID:         "r2",
		PipelineID: "orphan",
		Depth:      0,
		Status:     StatusCompleted,
		StartTime:  time.Date(2026, 8, 1, 10, 0, 1, 0, time.UTC),
		DurationMS: 5,
	}

	tree := BuildExecutionTree(trc)
	require.NotNil(t, tree)
	assert.Equal(t, MultipleRootsLabel, tree.PipelineID)
	assert.Nil(t, tree.Span)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, 5, tree.StepCount)
}

func TestBuildExecutionTree_Empty(t *testing.T) {
	assert.Nil(t, BuildExecutionTree(nil))
	assert.Nil(t, BuildExecutionTree(&Trace{Spans: map[string]*Span{}}))
}

func TestSummarize(t *testing.T) {
	tree := BuildExecutionTree(fixtureTrace())
	sum := Summarize(tree)

	assert.Equal(t, 4, sum.TotalSpans)
	assert.Equal(t, 3, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.InDelta(t, 75.0, sum.SuccessRate, 0.01)
	assert.Equal(t, 4, sum.DistinctPipelines)
	assert.Equal(t, 2, sum.MaxDepth)
	assert.Equal(t, int64(170), sum.TotalDurationMS)

	depth1, ok := sum.ByDepth[1]
	require.True(t, ok)
	assert.Equal(t, 2, depth1.Count)
	assert.Equal(t, int64(60), depth1.TotalMS)
	assert.InDelta(t, 30.0, depth1.AvgMS, 0.01)
	assert.Equal(t, int64(20), depth1.MinMS)
	assert.Equal(t, int64(40), depth1.MaxMS)
	assert.InDelta(t, 50.0, depth1.SuccessRate, 0.01)
}

func TestSummarize_TwoThirdsSuccessRate(t *testing.T) {
	base := time.Now()
	trc := &Trace{
		TraceID: "t",
		Spans: map[string]*Span{
			"a": {ID: "a", PipelineID: "p", Status: StatusCompleted, StartTime: base},
			"b": {ID: "b", PipelineID: "p", ParentSpanID: "a", Status: StatusCompleted, StartTime: base},
			"c": {ID: "c", PipelineID: "p", ParentSpanID: "a", Status: StatusFailed, StartTime: base},
		},
	}

	sum := Summarize(BuildExecutionTree(trc))
	assert.Equal(t, 3, sum.TotalSpans)
	assert.InDelta(t, 66.67, sum.SuccessRate, 0.01)
}

func TestSummarize_EmptyTree(t *testing.T) {
	sum := Summarize(nil)
	assert.Zero(t, sum.TotalSpans)
	assert.Zero(t, sum.SuccessRate)
}

func TestVisualize(t *testing.T) {
	tree := BuildExecutionTree(fixtureTrace())

	out := Visualize(tree, VisualizeOptions{ShowStatus: true, ShowTimings: true})

	assert.Contains(t, out, "✓ main (170ms)")
	assert.Contains(t, out, "  ✓ enrich (50ms)")
	assert.Contains(t, out, "    ✓ lookup (10ms)")
	assert.Contains(t, out, "  ✗ report (20ms)")
}

func TestVisualize_MaxDepthTruncates(t *testing.T) {
	tree := BuildExecutionTree(fixtureTrace())

	out := Visualize(tree, VisualizeOptions{MaxDepth: 2})

	assert.Contains(t, out, "main")
	assert.Contains(t, out, "enrich")
	assert.Contains(t, out, "… (max depth reached)")
	assert.NotContains(t, out, "lookup")
}

func TestVisualize_Empty(t *testing.T) {
	assert.Equal(t, "(empty trace)\n", Visualize(nil, VisualizeOptions{}))
}
