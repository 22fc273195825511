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

// Package perf grades pipeline executions from their trace summaries:
// it flags bottlenecks, assigns an ordinal performance grade, and
// produces human-readable and comparative reports.
package perf

import (
	"fmt"

	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// Grade is the discrete ordinal performance rating.
type Grade int

const (
	GradePoor Grade = iota
	GradeFair
	GradeGood
	GradeExcellent
)

// String implements fmt.Stringer.
func (g Grade) String() string {
	switch g {
	case GradeExcellent:
		return "excellent"
	case GradeGood:
		return "good"
	case GradeFair:
		return "fair"
	default:
		return "poor"
	}
}

// Severity classifies a bottleneck finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// BottleneckKind names the rule that fired.
type BottleneckKind string

const (
	BottleneckMemory        BottleneckKind = "memory"
	BottleneckSlowPipeline  BottleneckKind = "slow_pipeline"
	BottleneckDeepNesting   BottleneckKind = "deep_nesting"
	BottleneckFailureRate   BottleneckKind = "failure_rate"
	BottleneckLongExecution BottleneckKind = "long_execution"
)

// Bottleneck is one flagged degradation.
type Bottleneck struct {
	Kind        BottleneckKind `json:"kind"`
	Severity    Severity       `json:"severity"`
	PipelineID  string         `json:"pipeline_id,omitempty"`
	Description string         `json:"description"`
}

// Thresholds hold the fixed marks the bottleneck rules compare against.
type Thresholds struct {
	// MemoryHighWaterMB flags a memory bottleneck above this mark.
	MemoryHighWaterMB float64

	// SlowPipelineMultiple flags any pipeline slower than this
	// multiple of the run's average pipeline duration.
	SlowPipelineMultiple float64

	// DeepNestingDepth flags maximum depth above this value.
	DeepNestingDepth int

	// SuccessRatePercent flags runs whose success rate falls below.
	SuccessRatePercent float64

	// LongExecutionMS flags any single pipeline above this duration.
	LongExecutionMS int64
}

// DefaultThresholds returns the standard marks.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryHighWaterMB:    500,
		SlowPipelineMultiple: 3.0,
		DeepNestingDepth:     5,
		SuccessRatePercent:   95,
		LongExecutionMS:      30000,
	}
}

// RunStats is the aggregate input the analyzer consumes: the tracer's
// summary plus a resource snapshot and per-pipeline durations.
type RunStats struct {
	Summary           trace.Summary    `json:"summary"`
	PipelineDurations map[string]int64 `json:"pipeline_durations"`
	PeakMemoryBytes   uint64           `json:"peak_memory_bytes"`
}

// CollectRunStats assembles analyzer input from a reconstructed tree
// and a sampled peak memory value.
func CollectRunStats(root *trace.Node, peakMemoryBytes uint64) RunStats {
	stats := RunStats{
		Summary:           trace.Summarize(root),
		PipelineDurations: make(map[string]int64),
		PeakMemoryBytes:   peakMemoryBytes,
	}
	var walk func(*trace.Node)
	walk = func(n *trace.Node) {
		if n == nil {
			return
		}
		if n.Span != nil && n.Span.StepName == "" {
			stats.PipelineDurations[n.Span.PipelineID] += n.Span.DurationMS
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return stats
}

// Scalability grades depth and memory headroom independently; the
// overall grade is the worse of the two.
type Scalability struct {
	Depth   Grade `json:"depth"`
	Memory  Grade `json:"memory"`
	Overall Grade `json:"overall"`
}

// Report is the full analyzer output.
type Report struct {
	Stats           RunStats     `json:"stats"`
	Bottlenecks     []Bottleneck `json:"bottlenecks"`
	Grade           Grade        `json:"grade"`
	EfficiencyScore float64      `json:"efficiency_score"`
	Scalability     Scalability  `json:"scalability"`
}

// Analyzer evaluates run statistics against fixed thresholds.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer with default thresholds.
func NewAnalyzer() *Analyzer {
	return &Analyzer{thresholds: DefaultThresholds()}
}

// WithThresholds overrides the analyzer's thresholds.
func (a *Analyzer) WithThresholds(t Thresholds) *Analyzer {
	a.thresholds = t
	return a
}

// Analyze runs every bottleneck rule, grades the run, and computes the
// efficiency and scalability assessments. All rules are independent
// and may fire simultaneously.
func (a *Analyzer) Analyze(stats RunStats) *Report {
	return &Report{
		Stats:           stats,
		Bottlenecks:     a.findBottlenecks(stats),
		Grade:           a.grade(stats),
		EfficiencyScore: a.efficiency(stats),
		Scalability:     a.scalability(stats),
	}
}

func (a *Analyzer) findBottlenecks(stats RunStats) []Bottleneck {
	var found []Bottleneck
	th := a.thresholds

	peakMB := float64(stats.PeakMemoryBytes) / (1024 * 1024)
	if peakMB > th.MemoryHighWaterMB {
		found = append(found, Bottleneck{
			Kind:     BottleneckMemory,
			Severity: SeverityWarning,
			Description: fmt.Sprintf("peak memory %.1f MB exceeds high-water mark %.1f MB",
				peakMB, th.MemoryHighWaterMB),
		})
	}

	if avg := averageDuration(stats.PipelineDurations); avg > 0 {
		for id, dur := range stats.PipelineDurations {
			if float64(dur) > avg*th.SlowPipelineMultiple {
				found = append(found, Bottleneck{
					Kind:       BottleneckSlowPipeline,
					Severity:   SeverityWarning,
					PipelineID: id,
					Description: fmt.Sprintf("pipeline %s took %dms, %.1fx the run average of %.0fms",
						id, dur, float64(dur)/avg, avg),
				})
			}
		}
	}

	if stats.Summary.MaxDepth > th.DeepNestingDepth {
		found = append(found, Bottleneck{
			Kind:     BottleneckDeepNesting,
			Severity: SeverityWarning,
			Description: fmt.Sprintf("maximum nesting depth %d exceeds threshold %d",
				stats.Summary.MaxDepth, th.DeepNestingDepth),
		})
	}

	if stats.Summary.TotalSpans > 0 && stats.Summary.SuccessRate < th.SuccessRatePercent {
		found = append(found, Bottleneck{
			Kind:     BottleneckFailureRate,
			Severity: SeverityError,
			Description: fmt.Sprintf("success rate %.1f%% is below the %.0f%% threshold",
				stats.Summary.SuccessRate, th.SuccessRatePercent),
		})
	}

	for id, dur := range stats.PipelineDurations {
		if dur > th.LongExecutionMS {
			found = append(found, Bottleneck{
				Kind:       BottleneckLongExecution,
				Severity:   SeverityWarning,
				PipelineID: id,
				Description: fmt.Sprintf("pipeline %s ran for %dms, above the long-execution threshold of %dms",
					id, dur, th.LongExecutionMS),
			})
		}
	}

	return found
}

// grade derives the ordinal grade from a weighted score: success rate
// dominates, with duration, memory, and depth each able to pull the
// grade down.
func (a *Analyzer) grade(stats RunStats) Grade {
	score := 100.0
	th := a.thresholds

	score -= (100 - stats.Summary.SuccessRate) * 2

	totalMS := stats.Summary.TotalDurationMS
	switch {
	case totalMS > 2*th.LongExecutionMS:
		score -= 20
	case totalMS > th.LongExecutionMS:
		score -= 10
	}

	peakMB := float64(stats.PeakMemoryBytes) / (1024 * 1024)
	switch {
	case peakMB > th.MemoryHighWaterMB:
		score -= 20
	case peakMB > th.MemoryHighWaterMB/2:
		score -= 10
	}

	depth := stats.Summary.MaxDepth
	switch {
	case depth > th.DeepNestingDepth:
		score -= 15
	case depth > th.DeepNestingDepth-2:
		score -= 5
	}

	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 75:
		return GradeGood
	case score >= 60:
		return GradeFair
	default:
		return GradePoor
	}
}

// efficiency computes (totalSteps * successRate/100) divided by
// (duration in seconds * memory in hundreds of MB), guarding every
// division by zero.
func (a *Analyzer) efficiency(stats RunStats) float64 {
	durSeconds := float64(stats.Summary.TotalDurationMS) / 1000
	memFactor := float64(stats.PeakMemoryBytes) / (1024 * 1024) / 100

	denominator := durSeconds * memFactor
	if denominator <= 0 {
		return 0
	}
	return float64(stats.Summary.TotalSpans) * stats.Summary.SuccessRate / 100 / denominator
}

func (a *Analyzer) scalability(stats RunStats) Scalability {
	var s Scalability

	depth := stats.Summary.MaxDepth
	switch {
	case depth <= 3:
		s.Depth = GradeExcellent
	case depth <= 5:
		s.Depth = GradeGood
	case depth <= 8:
		s.Depth = GradeFair
	default:
		s.Depth = GradePoor
	}

	peakMB := float64(stats.PeakMemoryBytes) / (1024 * 1024)
	switch {
	case peakMB <= 100:
		s.Memory = GradeExcellent
	case peakMB <= 250:
		s.Memory = GradeGood
	case peakMB <= 500:
		s.Memory = GradeFair
	default:
		s.Memory = GradePoor
	}

	s.Overall = s.Depth
	if s.Memory < s.Overall {
		s.Overall = s.Memory
	}
	return s
}

func averageDuration(durations map[string]int64) float64 {
	if len(durations) == 0 {
		return 0
	}
	var total int64
	for _, d := range durations {
		total += d
	}
	return float64(total) / float64(len(durations))
}
