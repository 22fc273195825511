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

// Package guard enforces the safety limits that keep unbounded
// self-similar pipeline nesting in check: recursion depth, cumulative
// step count, circular self-invocation, sampled memory, and wall-clock
// time. A rejected invocation is terminal; retry policy belongs to the
// calling orchestrator.
package guard

import (
	"log/slog"
)

// Guard validates execution contexts against safety limits before a
// nested invocation is admitted.
type Guard struct {
	logger  *slog.Logger
	sampler *ResourceSampler
}

// New creates a guard with a default resource sampler.
func New() *Guard {
	return &Guard{
		logger:  slog.Default(),
		sampler: NewResourceSampler(),
	}
}

// WithLogger sets a custom logger for the guard.
func (g *Guard) WithLogger(logger *slog.Logger) *Guard {
	g.logger = logger
	return g
}

// WithSampler sets a custom resource sampler.
func (g *Guard) WithSampler(sampler *ResourceSampler) *Guard {
	g.sampler = sampler
	return g
}

// CheckLimits validates nesting depth and cumulative step count for a
// context against the given limits. Violations are returned as typed
// error values reporting both the limit and the observed value.
func (g *Guard) CheckLimits(ctx *ExecutionContext, limits SafetyLimits) error {
	if ctx.NestingDepth > limits.MaxDepth {
		return &DepthLimitError{Limit: limits.MaxDepth, Observed: ctx.NestingDepth}
	}
	if total := ctx.TotalSteps(); total > limits.MaxTotalSteps {
		return &StepLimitError{Limit: limits.MaxTotalSteps, Observed: total}
	}
	return nil
}

// CheckCircularDependency rejects a candidate pipeline id that already
// appears anywhere in the context's ancestor chain. The error
// enumerates the chain candidate-first.
func (g *Guard) CheckCircularDependency(candidateID string, ctx *ExecutionContext) error {
	chain := ctx.AncestorChain()
	for _, id := range chain {
		if id == candidateID {
			return &CircularDependencyError{
				PipelineID: candidateID,
				Chain:      append([]string{candidateID}, chain...),
			}
		}
	}
	return nil
}

// CheckResources validates a sampled resource snapshot against memory
// and timeout limits.
func (g *Guard) CheckResources(usage ResourceUsage, limits SafetyLimits) error {
	limitMB := float64(limits.MemoryLimitBytes) / (1024 * 1024)
	observedMB := float64(usage.MemoryBytes) / (1024 * 1024)
	if limits.MemoryLimitBytes > 0 && observedMB > limitMB {
		return &MemoryLimitError{LimitMB: limitMB, ObservedMB: observedMB}
	}

	elapsedSeconds := float64(usage.ElapsedMS) / 1000
	if limits.TimeoutSeconds > 0 && elapsedSeconds > limits.TimeoutSeconds {
		return &TimeoutError{LimitSeconds: limits.TimeoutSeconds, ElapsedSeconds: elapsedSeconds}
	}
	return nil
}

// CheckAllSafety composes the admission checks for one candidate
// nested invocation, short-circuiting on the first failure. Resource
// checks run last because they observe sampled state rather than the
// candidate itself.
func (g *Guard) CheckAllSafety(candidateID string, ctx *ExecutionContext, limits SafetyLimits) error {
	if err := g.CheckLimits(ctx, limits); err != nil {
		g.logger.Warn("nested invocation rejected",
			"pipeline_id", candidateID,
			"depth", ctx.NestingDepth,
			"error", err,
		)
		return err
	}
	if err := g.CheckCircularDependency(candidateID, ctx); err != nil {
		g.logger.Warn("nested invocation rejected",
			"pipeline_id", candidateID,
			"depth", ctx.NestingDepth,
			"error", err,
		)
		return err
	}
	if g.sampler != nil {
		if err := g.CheckResources(g.sampler.Sample(), limits); err != nil {
			g.logger.Warn("nested invocation rejected",
				"pipeline_id", candidateID,
				"depth", ctx.NestingDepth,
				"error", err,
			)
			return err
		}
	}
	return nil
}
