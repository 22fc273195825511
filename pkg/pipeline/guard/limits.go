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

package guard

import (
	"fmt"
	"strings"
)

// SafetyLimits bounds one pipeline run. Limits are immutable
// configuration supplied per run; callers default them at the call
// site with DefaultLimits rather than relying on hidden global state.
type SafetyLimits struct {
	// MaxDepth is the maximum allowed nesting depth for nested
	// pipeline invocations. The root runs at depth 0.
	MaxDepth int `yaml:"max_depth"`

	// MaxTotalSteps caps the cumulative declared step count across an
	// execution context and all its ancestors.
	MaxTotalSteps int `yaml:"max_total_steps"`

	// MemoryLimitBytes caps sampled process memory.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// TimeoutSeconds caps sampled wall-clock time for the run.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// DefaultLimits returns the limits used when the caller supplies none.
func DefaultLimits() SafetyLimits {
	return SafetyLimits{
		MaxDepth:         10,
		MaxTotalSteps:    1000,
		MemoryLimitBytes: 512 * 1024 * 1024,
		TimeoutSeconds:   300,
	}
}

// DepthLimitError reports a nesting-depth limit violation.
type DepthLimitError struct {
	Limit    int
	Observed int
}

// Error implements the error interface.
func (e *DepthLimitError) Error() string {
	return fmt.Sprintf("nesting depth %d exceeds limit %d", e.Observed, e.Limit)
}

// StepLimitError reports a cumulative step-count limit violation.
type StepLimitError struct {
	Limit    int
	Observed int
}

// Error implements the error interface.
func (e *StepLimitError) Error() string {
	return fmt.Sprintf("total step count %d exceeds limit %d", e.Observed, e.Limit)
}

// CircularDependencyError reports a pipeline id that already appears in
// its own ancestor chain.
type CircularDependencyError struct {
	// PipelineID is the candidate that would have recursed.
	PipelineID string

	// Chain is the invocation chain, candidate first, walking up to
	// the root.
	Chain []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected for pipeline %s: %s",
		e.PipelineID, strings.Join(e.Chain, " → "))
}

// MemoryLimitError reports sampled memory above the configured limit.
type MemoryLimitError struct {
	LimitMB    float64
	ObservedMB float64
}

// Error implements the error interface.
func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("memory usage %.1f MB exceeds limit %.1f MB", e.ObservedMB, e.LimitMB)
}

// TimeoutError reports sampled elapsed time above the configured limit.
type TimeoutError struct {
	LimitSeconds   float64
	ElapsedSeconds float64
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("elapsed time %.1fs exceeds timeout %.1fs", e.ElapsedSeconds, e.LimitSeconds)
}
