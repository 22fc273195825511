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
)

func TestFormatReport(t *testing.T) {
	report := NewAnalyzer().Analyze(healthyStats())

	out := FormatReport(report)

	assert.Contains(t, out, "=== Performance Report ===")
	assert.Contains(t, out, "Grade: excellent")
	assert.Contains(t, out, "--- Summary ---")
	assert.Contains(t, out, "Success rate: 100.0%")
	assert.Contains(t, out, "--- Pipelines ---")
	assert.Contains(t, out, "enrich: 650ms")
	assert.Contains(t, out, "--- Bottlenecks ---")
	assert.Contains(t, out, "none detected")
	assert.Contains(t, out, "--- Scalability ---")
	assert.Contains(t, out, "Overall: excellent")
}

func TestFormatReport_ListsBottlenecks(t *testing.T) {
	stats := healthyStats()
	stats.PeakMemoryBytes = 600 * mb
	report := NewAnalyzer().Analyze(stats)

	out := FormatReport(report)

	assert.NotContains(t, out, "none detected")
	assert.Contains(t, out, "[warning] memory:")
	assert.Contains(t, out, "600.0 MB")
}

func TestFormatReport_Nil(t *testing.T) {
	assert.Equal(t, "(no report)\n", FormatReport(nil))
}

func TestCompare(t *testing.T) {
	good := NewAnalyzer().Analyze(healthyStats())

	bad := healthyStats()
	bad.Summary.SuccessRate = 50
	bad.Summary.TotalDurationMS = 8000
	poor := NewAnalyzer().Analyze(bad)

	c := Compare([]*Report{good, poor})

	assert.Equal(t, 2, c.Runs)
	assert.Equal(t, GradeExcellent, c.BestGrade)
	assert.Equal(t, GradePoor, c.WorstGrade)
	assert.InDelta(t, 75.0, c.AvgSuccessRate, 0.01)
	assert.InDelta(t, 5000.0, c.AvgDurationMS, 0.01)
	assert.Equal(t, int64(2000), c.FastestMS)
	assert.Equal(t, int64(8000), c.SlowestMS)
}

func TestCompare_Empty(t *testing.T) {
	c := Compare(nil)
	assert.Zero(t, c.Runs)

	out := FormatComparison(c)
	assert.Contains(t, out, "Runs: 0")
	assert.NotContains(t, out, "Grades:")
}

func TestFormatComparison(t *testing.T) {
	report := NewAnalyzer().Analyze(healthyStats())
	out := FormatComparison(Compare([]*Report{report}))

	assert.Contains(t, out, "=== Run Comparison ===")
	assert.Contains(t, out, "Runs: 1")
	assert.Contains(t, out, "best excellent, worst excellent")
	assert.Contains(t, out, "fastest 2000ms, slowest 2000ms")
}
