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
	"github.com/cascadehq/cascade/pkg/pipeline/scope"
)

// ExecutionContext is the live record of one in-flight pipeline
// invocation: its identity, its place in the ancestor chain, and the
// step bookkeeping mutated as execution progresses.
//
// A context chain is logically single-threaded; concurrent siblings
// each own an independent context. Parent links are plain references,
// so walking or cleaning one chain never copies or disturbs another.
type ExecutionContext struct {
	// PipelineID identifies the pipeline this context executes.
	PipelineID string

	// NestingDepth is 0 for the root and parent depth + 1 otherwise.
	NestingDepth int

	// StepCount is the number of steps declared at this level.
	StepCount int

	// Parent is the enclosing invocation, or nil for the root.
	Parent *ExecutionContext

	// Scope is the live variable store for this invocation.
	Scope *scope.State

	// CurrentStep and StepIndex track the step executing right now.
	CurrentStep string
	StepIndex   int

	// Results accumulates step outputs keyed by step id. Released by
	// Cleanup once the invocation returns.
	Results map[string]interface{}

	// Logs accumulates per-step log lines. Released by Cleanup.
	Logs []string
}

// NewExecutionContext creates a context for one pipeline invocation.
// Depth is the parent's depth plus one, or 0 with no parent.
func NewExecutionContext(pipelineID string, parent *ExecutionContext, stepCount int) *ExecutionContext {
	depth := 0
	var st *scope.State
	if parent != nil {
		depth = parent.NestingDepth + 1
		st = parent.Scope
	}
	if st == nil {
		st = scope.NewState()
	}
	return &ExecutionContext{
		PipelineID:   pipelineID,
		NestingDepth: depth,
		StepCount:    stepCount,
		Parent:       parent,
		Scope:        st,
		Results:      make(map[string]interface{}),
	}
}

// AncestorChain returns pipeline ids from this context up to the root,
// self first.
func (c *ExecutionContext) AncestorChain() []string {
	var chain []string
	for cur := c; cur != nil; cur = cur.Parent {
		chain = append(chain, cur.PipelineID)
	}
	return chain
}

// TotalSteps sums step counts across this context and all ancestors.
func (c *ExecutionContext) TotalSteps() int {
	total := 0
	for cur := c; cur != nil; cur = cur.Parent {
		total += cur.StepCount
	}
	return total
}

// SetCurrentStep records the step executing at this level and mirrors
// the bookkeeping into the scope store.
func (c *ExecutionContext) SetCurrentStep(name string, index int) {
	c.CurrentStep = name
	c.StepIndex = index
	if c.Scope != nil {
		c.Scope.SetCurrentStep(name, index)
	}
}

// Release clears this frame's accumulated results and logs without
// touching ancestors. Called when a nested invocation returns while
// its parent frames are still live.
func (c *ExecutionContext) Release() {
	if len(c.Results) > 0 {
		c.Results = make(map[string]interface{})
	}
	c.Logs = nil
}

// Cleanup releases accumulated results and log collections for this
// context and every ancestor, bounding retained memory by chain length
// rather than chain length times payload size. Depth, id, and parent
// links are preserved, so cleanup of one chain is idempotent and does
// not break concurrently running siblings.
func (c *ExecutionContext) Cleanup() {
	for cur := c; cur != nil; cur = cur.Parent {
		cur.Release()
	}
}
