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

	"github.com/cascadehq/cascade/pkg/pipeline/expression"
	"github.com/cascadehq/cascade/pkg/pipeline/guard"
	"github.com/cascadehq/cascade/pkg/pipeline/scope"
	"github.com/cascadehq/cascade/pkg/pipeline/trace"
)

// DefaultMaxIterations caps loop steps that declare no explicit bound.
const DefaultMaxIterations = 100

// runLoop repeats the step body until the until condition holds or the
// iteration cap is reached. The body always runs at least once. Loop
// scope is cleared at every iteration boundary; the current iteration
// index is available as the "iteration" loop variable. The step result
// is the number of completed iterations.
func (r *Runner) runLoop(ctx context.Context, def *Definition, step *StepDefinition, execCtx *guard.ExecutionContext, trc *trace.Trace) (interface{}, error) {
	maxIterations := step.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	iterations := 0
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return iterations, err
		}

		if err := execCtx.Scope.ClearScope(scope.ScopeLoop); err != nil {
			return iterations, err
		}
		if err := execCtx.Scope.SetVariables(map[string]interface{}{"iteration": i}, scope.ScopeLoop); err != nil {
			return iterations, err
		}

		for j := range step.Body {
			sub := &step.Body[j]
			admitted, err := r.admitted(sub, execCtx)
			if err != nil {
				return iterations, err
			}
			if !admitted {
				continue
			}
			if err := r.runStep(ctx, def, sub, j, execCtx, trc); err != nil {
				return iterations, err
			}
		}
		iterations = i + 1

		done, err := r.loopDone(step, execCtx)
		if err != nil {
			return iterations, err
		}
		if done {
			break
		}
	}

	if err := execCtx.Scope.ClearScope(scope.ScopeLoop); err != nil {
		return iterations, err
	}
	return iterations, nil
}

// loopDone evaluates the until condition after an iteration. A loop
// without an until condition runs to its iteration cap.
func (r *Runner) loopDone(step *StepDefinition, execCtx *guard.ExecutionContext) (bool, error) {
	if step.Until == nil {
		return false, nil
	}

	evalCtx := r.evalContext(execCtx)
	if step.Dialect == expression.DialectExpr {
		cond, ok := step.Until.(string)
		if ok {
			return r.exprEval.Evaluate(cond, evalCtx)
		}
	}
	return r.eval.Evaluate(step.Until, evalCtx)
}
