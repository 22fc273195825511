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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/expression"
	"github.com/cascadehq/cascade/pkg/pipeline/guard"
	"github.com/cascadehq/cascade/pkg/pipeline/scope"
	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// StepExecutor performs task steps. The runner interpolates the step's
// parameters against the live scope before calling it; the returned
// value becomes the step result.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step *StepDefinition, params map[string]interface{}) (interface{}, error)
}

// StepExecutorFunc adapts a function to the StepExecutor interface.
type StepExecutorFunc func(ctx context.Context, step *StepDefinition, params map[string]interface{}) (interface{}, error)

// ExecuteStep implements StepExecutor.
func (f StepExecutorFunc) ExecuteStep(ctx context.Context, step *StepDefinition, params map[string]interface{}) (interface{}, error) {
	return f(ctx, step, params)
}

// Runner executes registered pipelines: it gates steps on their
// conditions, dispatches them by type, guards every nested invocation,
// and records one span per pipeline and step.
type Runner struct {
	registry *Registry
	steps    StepExecutor
	guard    *guard.Guard
	tracer   *trace.Tracer
	eval     *expression.Evaluator
	exprEval *expression.ExprEvaluator
	limits   guard.SafetyLimits
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLimits overrides the default safety limits.
func WithLimits(limits guard.SafetyLimits) RunnerOption {
	return func(r *Runner) { r.limits = limits }
}

// WithTracer supplies a tracer, typically one carrying observers.
func WithTracer(tr *trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = tr }
}

// WithGuard supplies a guard, typically one with a custom sampler.
func WithGuard(g *guard.Guard) RunnerOption {
	return func(r *Runner) { r.guard = g }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner over a registry and a step executor. A nil
// executor is allowed for pipelines without task steps.
func NewRunner(registry *Registry, steps StepExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		steps:    steps,
		guard:    guard.New(),
		tracer:   trace.NewTracer(),
		eval:     expression.New(),
		exprEval: expression.NewExpr(),
		limits:   guard.DefaultLimits(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunResult is what a completed (or failed) run leaves behind: step
// results keyed by step id, the execution trace, and the final scope.
type RunResult struct {
	Results map[string]interface{}
	Trace   *trace.Trace
	Scope   *scope.State
}

// Run executes the named pipeline to completion. Inputs are merged into
// the global scope before the first step. On step failure the error is
// returned together with the partial result, so callers can still
// inspect the trace. Accumulated results are released when Run returns.
func (r *Runner) Run(ctx context.Context, name string, inputs map[string]interface{}) (*RunResult, error) {
	def, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	execCtx := guard.NewExecutionContext(def.Name, nil, len(def.Steps))
	defer execCtx.Cleanup()

	if len(def.Variables) > 0 {
		if err := execCtx.Scope.SetVariables(def.Variables, scope.ScopeGlobal); err != nil {
			return nil, err
		}
	}
	if len(inputs) > 0 {
		if err := execCtx.Scope.SetVariables(inputs, scope.ScopeGlobal); err != nil {
			return nil, err
		}
	}

	if err := r.guard.CheckLimits(execCtx, r.limits); err != nil {
		return nil, err
	}

	trc, runErr := r.runPipeline(ctx, def, execCtx, nil)

	return &RunResult{
		Results: copyResults(execCtx.Results),
		Trace:   trc,
		Scope:   execCtx.Scope,
	}, runErr
}

// runPipeline executes one pipeline level inside its own span.
func (r *Runner) runPipeline(ctx context.Context, def *Definition, execCtx *guard.ExecutionContext, trc *trace.Trace) (_ *trace.Trace, err error) {
	trc = r.tracer.StartSpan(def.Name, execCtx, nil, trc)
	defer func() { r.tracer.CompleteSpan(trc, err) }()

	r.logger.Info("pipeline started",
		"pipeline_id", def.Name,
		"depth", execCtx.NestingDepth,
		"steps", len(def.Steps),
	)

	for i := range def.Steps {
		step := &def.Steps[i]
		if err = ctx.Err(); err != nil {
			return trc, err
		}
		execCtx.SetCurrentStep(step.ID, i)

		admitted, condErr := r.admitted(step, execCtx)
		if condErr != nil {
			err = &errors.ExecutionError{PipelineID: def.Name, StepID: step.ID, Cause: condErr}
			return trc, err
		}
		if !admitted {
			r.logger.Debug("step skipped", "pipeline_id", def.Name, "step_id", step.ID)
			continue
		}

		if err = r.runStep(ctx, def, step, i, execCtx, trc); err != nil {
			return trc, err
		}
	}
	return trc, nil
}

// runStep opens a step span, dispatches by type, and records the result
// on the execution context and, when requested, in the variable scope.
func (r *Runner) runStep(ctx context.Context, def *Definition, step *StepDefinition, index int, execCtx *guard.ExecutionContext, trc *trace.Trace) error {
	info := &trace.StepInfo{Name: step.ID, Type: string(step.Type), Index: index}
	r.tracer.StartSpan(def.Name, execCtx, info, trc)

	value, err := r.dispatch(ctx, def, step, execCtx, trc)
	r.tracer.CompleteSpan(trc, err)
	if err != nil {
		// Nested failures already carry their own attribution.
		if _, ok := err.(*errors.ExecutionError); ok {
			return err
		}
		return &errors.ExecutionError{PipelineID: def.Name, StepID: step.ID, Cause: err}
	}

	execCtx.Results[step.ID] = value
	if step.Register != "" {
		tier := step.Scope
		if tier == "" {
			tier = scope.ScopeGlobal
		}
		if err := execCtx.Scope.SetVariables(map[string]interface{}{step.Register: value}, tier); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, def *Definition, step *StepDefinition, execCtx *guard.ExecutionContext, trc *trace.Trace) (interface{}, error) {
	switch step.Type {
	case StepTask:
		return r.runTask(ctx, step, execCtx)
	case StepPipeline:
		return r.runNested(ctx, step, execCtx, trc)
	case StepTransform:
		return r.runTransform(ctx, step, execCtx)
	case StepLoop:
		return r.runLoop(ctx, def, step, execCtx, trc)
	default:
		return nil, &errors.ValidationError{
			Field:      "type",
			Message:    fmt.Sprintf("unknown step type %q", step.Type),
			Suggestion: "use task, pipeline, transform, or loop",
		}
	}
}

func (r *Runner) runTask(ctx context.Context, step *StepDefinition, execCtx *guard.ExecutionContext) (interface{}, error) {
	if r.steps == nil {
		return nil, &errors.ValidationError{
			Field:      "executor",
			Message:    "no step executor configured",
			Suggestion: "supply a StepExecutor to NewRunner",
		}
	}

	params := make(map[string]interface{})
	if len(step.With) > 0 {
		if resolved, ok := execCtx.Scope.InterpolateData(step.With).(map[string]interface{}); ok {
			params = resolved
		}
	}
	return r.steps.ExecuteStep(ctx, step, params)
}

// runNested invokes another registered pipeline one level deeper. The
// guard admits or rejects the invocation before any nested step runs;
// the child frame itself counts toward the depth and step limits.
func (r *Runner) runNested(ctx context.Context, step *StepDefinition, execCtx *guard.ExecutionContext, trc *trace.Trace) (interface{}, error) {
	nested, err := r.registry.Get(step.Pipeline)
	if err != nil {
		return nil, err
	}

	if err := r.guard.CheckAllSafety(nested.Name, execCtx, r.limits); err != nil {
		return nil, err
	}
	child := guard.NewExecutionContext(nested.Name, execCtx, len(nested.Steps))
	// Release only the child frame on the way out; the parent's results
	// are still live.
	defer child.Release()
	if err := r.guard.CheckLimits(child, r.limits); err != nil {
		return nil, err
	}

	if len(nested.Variables) > 0 {
		if err := child.Scope.SetVariables(nested.Variables, scope.ScopeGlobal); err != nil {
			return nil, err
		}
	}

	if _, err := r.runPipeline(ctx, nested, child, trc); err != nil {
		return nil, err
	}
	return copyResults(child.Results), nil
}

// admitted evaluates a step's condition in the configured dialect.
func (r *Runner) admitted(step *StepDefinition, execCtx *guard.ExecutionContext) (bool, error) {
	if step.Condition == nil {
		return true, nil
	}

	evalCtx := r.evalContext(execCtx)
	if step.Dialect == expression.DialectExpr {
		cond, _ := step.Condition.(string)
		return r.exprEval.Evaluate(cond, evalCtx)
	}
	return r.eval.Evaluate(step.Condition, evalCtx)
}

// evalContext builds the expression context for one level: flattened
// scope variables at the top level and under "state", step results
// under "results".
func (r *Runner) evalContext(execCtx *guard.ExecutionContext) map[string]interface{} {
	flat := execCtx.Scope.GetAllVariables()
	evalCtx := make(map[string]interface{}, len(flat)+2)
	for k, v := range flat {
		evalCtx[k] = v
	}
	evalCtx["state"] = flat
	evalCtx["results"] = execCtx.Results
	return evalCtx
}

func copyResults(results map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}
