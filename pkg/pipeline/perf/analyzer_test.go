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

package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

const mb = 1024 * 1024

func healthyStats() RunStats {
	return RunStats{
		Summary: trace.Summary{
			TotalSpans:        10,
			Completed:         10,
			SuccessRate:       100,
			TotalDurationMS:   2000,
			MaxDepth:          2,
			DistinctPipelines: 3,
		},
		PipelineDurations: map[string]int64{
			"ingest": 700,
			"enrich": 650,
			"report": 650,
		},
		PeakMemoryBytes: 50 * mb,
	}
}

func TestAnalyze_HealthyRun(t *testing.T) {
	report := NewAnalyzer().Analyze(healthyStats())

	assert.Empty(t, report.Bottlenecks)
	assert.Equal(t, GradeExcellent, report.Grade)
	assert.Equal(t, GradeExcellent, report.Scalability.Overall)
	assert.Greater(t, report.EfficiencyScore, 0.0)
}

func TestAnalyze_MemoryBottleneck(t *testing.T) {
	stats := healthyStats()
	stats.PeakMemoryBytes = 600 * mb

	report := NewAnalyzer().Analyze(stats)

	require.Len(t, report.Bottlenecks, 1)
	bn := report.Bottlenecks[0]
	assert.Equal(t, BottleneckMemory, bn.Kind)
	assert.Equal(t, SeverityWarning, bn.Severity)
	assert.Contains(t, bn.Description, "600.0 MB")
	assert.Equal(t, GradePoor, report.Scalability.Memory)
}

func TestAnalyze_SlowPipelineNamesIt(t *testing.T) {
	stats := healthyStats()
	stats.PipelineDurations = map[string]int64{
		"fast-a": 100,
		"fast-b": 100,
		"fast-c": 100,
		"slug":   2000,
	}

	report := NewAnalyzer().Analyze(stats)

	var slow []Bottleneck
	for _, bn := range report.Bottlenecks {
		if bn.Kind == BottleneckSlowPipeline {
			slow = append(slow, bn)
		}
	}
	require.Len(t, slow, 1)
	assert.Equal(t, "slug", slow[0].PipelineID)
	assert.Contains(t, slow[0].Description, "slug")
}

func TestAnalyze_DeepNesting(t *testing.T) {
	stats := healthyStats()
	stats.Summary.MaxDepth = 7

	report := NewAnalyzer().Analyze(stats)

	var kinds []BottleneckKind
	for _, bn := range report.Bottlenecks {
		kinds = append(kinds, bn.Kind)
	}
	assert.Contains(t, kinds, BottleneckDeepNesting)
	assert.Equal(t, GradeFair, report.Scalability.Depth)
}

func TestAnalyze_LowSuccessRateIsErrorSeverity(t *testing.T) {
	stats := healthyStats()
	stats.Summary.Completed = 8
	stats.Summary.Failed = 2
	stats.Summary.SuccessRate = 80

	report := NewAnalyzer().Analyze(stats)

	var failure *Bottleneck
	for i := range report.Bottlenecks {
		if report.Bottlenecks[i].Kind == BottleneckFailureRate {
			failure = &report.Bottlenecks[i]
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, SeverityError, failure.Severity)
	assert.Contains(t, failure.Description, "80.0%")
}

func TestAnalyze_LongExecutionIsWarning(t *testing.T) {
	stats := healthyStats()
	stats.PipelineDurations["marathon"] = 45000

	report := NewAnalyzer().Analyze(stats)

	var long *Bottleneck
	for i := range report.Bottlenecks {
		if report.Bottlenecks[i].Kind == BottleneckLongExecution {
			long = &report.Bottlenecks[i]
		}
	}
	require.NotNil(t, long)
	assert.Equal(t, SeverityWarning, long.Severity)
	assert.Equal(t, "marathon", long.PipelineID)
}

func TestAnalyze_AllRulesMayFireTogether(t *testing.T) {
	stats := RunStats{
		Summary: trace.Summary{
			TotalSpans:      10,
			Completed:       5,
			Failed:          5,
			SuccessRate:     50,
			TotalDurationMS: 120000,
			MaxDepth:        9,
		},
		PipelineDurations: map[string]int64{
			"quick-a": 100,
			"quick-b": 100,
			"quick-c": 100,
			"slow":    40000,
		},
		PeakMemoryBytes: 800 * mb,
	}

	report := NewAnalyzer().Analyze(stats)

	kinds := make(map[BottleneckKind]bool)
	for _, bn := range report.Bottlenecks {
		kinds[bn.Kind] = true
	}
	assert.True(t, kinds[BottleneckMemory])
	assert.True(t, kinds[BottleneckSlowPipeline])
	assert.True(t, kinds[BottleneckDeepNesting])
	assert.True(t, kinds[BottleneckFailureRate])
	assert.True(t, kinds[BottleneckLongExecution])

	assert.Equal(t, GradePoor, report.Grade)
	assert.Equal(t, GradePoor, report.Scalability.Overall)
}

func TestEfficiency_DivisionByZeroGuard(t *testing.T) {
	a := NewAnalyzer()

	stats := healthyStats()
	stats.Summary.TotalDurationMS = 0
	assert.Zero(t, a.Analyze(stats).EfficiencyScore)

	stats = healthyStats()
	stats.PeakMemoryBytes = 0
	assert.Zero(t, a.Analyze(stats).EfficiencyScore)
}

func TestGrade_WorseOnAnyDimension(t *testing.T) {
	a := NewAnalyzer()

	base := healthyStats()
	assert.Equal(t, GradeExcellent, a.Analyze(base).Grade)

	degraded := healthyStats()
	degraded.Summary.SuccessRate = 90
	assert.Less(t, a.Analyze(degraded).Grade, GradeExcellent)

	deep := healthyStats()
	deep.Summary.MaxDepth = 9
	assert.Less(t, a.Analyze(deep).Grade, GradeExcellent)
}

func TestScalability_OverallIsWorseOfTwo(t *testing.T) {
	a := NewAnalyzer()

	stats := healthyStats()
	stats.Summary.MaxDepth = 2
	stats.PeakMemoryBytes = 400 * mb
	s := a.Analyze(stats).Scalability

	assert.Equal(t, GradeExcellent, s.Depth)
	assert.Equal(t, GradeFair, s.Memory)
	assert.Equal(t, GradeFair, s.Overall)
}

func TestCollectRunStats(t *testing.T) {
	trc := &trace.Trace{
		TraceID: "t",
		Spans: map[string]*trace.Span{
			"root": {ID: "root", PipelineID: "main", Status: trace.StatusCompleted, DurationMS: 100},
			"c1":   {ID: "c1", ParentSpanID: "root", PipelineID: "sub", Status: trace.StatusCompleted, DurationMS: 40},
			"s1":   {ID: "s1", ParentSpanID: "c1", PipelineID: "sub", StepName: "fetch", Status: trace.StatusCompleted, DurationMS: 30},
		},
	}

	stats := CollectRunStats(trace.BuildExecutionTree(trc), 10*mb)

	assert.Equal(t, uint64(10*mb), stats.PeakMemoryBytes)
	assert.Equal(t, 3, stats.Summary.TotalSpans)
	// Only pipeline-level spans contribute to per-pipeline durations.
	assert.Equal(t, map[string]int64{"main": 100, "sub": 40}, stats.PipelineDurations)
}
