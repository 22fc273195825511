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
	"fmt"
	"sort"
	"strings"
)

// FormatReport renders a line-oriented, human-readable performance
// report with fixed section headers.
func FormatReport(r *Report) string {
	if r == nil {
		return "(no report)\n"
	}

	var b strings.Builder

	b.WriteString("=== Performance Report ===\n")
	fmt.Fprintf(&b, "Grade: %s\n", r.Grade)
	fmt.Fprintf(&b, "Efficiency score: %.2f\n", r.EfficiencyScore)
	b.WriteString("\n--- Summary ---\n")
	fmt.Fprintf(&b, "Total spans: %d (completed %d, failed %d)\n",
		r.Stats.Summary.TotalSpans, r.Stats.Summary.Completed, r.Stats.Summary.Failed)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", r.Stats.Summary.SuccessRate)
	fmt.Fprintf(&b, "Total duration: %dms\n", r.Stats.Summary.TotalDurationMS)
	fmt.Fprintf(&b, "Max nesting depth: %d\n", r.Stats.Summary.MaxDepth)
	fmt.Fprintf(&b, "Distinct pipelines: %d\n", r.Stats.Summary.DistinctPipelines)
	fmt.Fprintf(&b, "Peak memory: %.1f MB\n", float64(r.Stats.PeakMemoryBytes)/(1024*1024))

	if len(r.Stats.PipelineDurations) > 0 {
		b.WriteString("\n--- Pipelines ---\n")
		for _, id := range sortedPipelineIDs(r.Stats.PipelineDurations) {
			fmt.Fprintf(&b, "%s: %dms\n", id, r.Stats.PipelineDurations[id])
		}
	}

	b.WriteString("\n--- Bottlenecks ---\n")
	if len(r.Bottlenecks) == 0 {
		b.WriteString("none detected\n")
	} else {
		for _, bn := range r.Bottlenecks {
			fmt.Fprintf(&b, "[%s] %s: %s\n", bn.Severity, bn.Kind, bn.Description)
		}
	}

	b.WriteString("\n--- Scalability ---\n")
	fmt.Fprintf(&b, "Depth: %s\n", r.Scalability.Depth)
	fmt.Fprintf(&b, "Memory: %s\n", r.Scalability.Memory)
	fmt.Fprintf(&b, "Overall: %s\n", r.Scalability.Overall)

	return b.String()
}

// Comparison summarizes a set of analyzed runs against each other.
type Comparison struct {
	Runs           int     `json:"runs"`
	BestGrade      Grade   `json:"best_grade"`
	WorstGrade     Grade   `json:"worst_grade"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	FastestMS      int64   `json:"fastest_ms"`
	SlowestMS      int64   `json:"slowest_ms"`
}

// Compare computes cross-run statistics over already-analyzed reports.
func Compare(reports []*Report) Comparison {
	c := Comparison{Runs: len(reports)}
	if len(reports) == 0 {
		return c
	}

	c.BestGrade = reports[0].Grade
	c.WorstGrade = reports[0].Grade
	c.FastestMS = reports[0].Stats.Summary.TotalDurationMS
	c.SlowestMS = c.FastestMS

	var rateTotal float64
	var durTotal int64
	for _, r := range reports {
		if r.Grade > c.BestGrade {
			c.BestGrade = r.Grade
		}
		if r.Grade < c.WorstGrade {
			c.WorstGrade = r.Grade
		}
		dur := r.Stats.Summary.TotalDurationMS
		if dur < c.FastestMS {
			c.FastestMS = dur
		}
		if dur > c.SlowestMS {
			c.SlowestMS = dur
		}
		rateTotal += r.Stats.Summary.SuccessRate
		durTotal += dur
	}
	c.AvgSuccessRate = rateTotal / float64(len(reports))
	c.AvgDurationMS = float64(durTotal) / float64(len(reports))
	return c
}

// FormatComparison renders a multi-run comparison report.
func FormatComparison(c Comparison) string {
	var b strings.Builder
	b.WriteString("=== Run Comparison ===\n")
	fmt.Fprintf(&b, "Runs: %d\n", c.Runs)
	if c.Runs == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "Grades: best %s, worst %s\n", c.BestGrade, c.WorstGrade)
	fmt.Fprintf(&b, "Average success rate: %.1f%%\n", c.AvgSuccessRate)
	fmt.Fprintf(&b, "Duration: avg %.0fms, fastest %dms, slowest %dms\n",
		c.AvgDurationMS, c.FastestMS, c.SlowestMS)
	return b.String()
}

// sortedPipelineIDs yields deterministic iteration order for report
// output.
func sortedPipelineIDs(durations map[string]int64) []string {
	ids := make([]string, 0, len(durations))
	for id := range durations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
