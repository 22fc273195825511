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

package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cascadehq/cascade/pkg/errors"
)

// DialectExpr selects the expr-lang condition dialect on a step
// condition. The native dialect is the default.
const (
	DialectNative = "native"
	DialectExpr   = "expr"
)

// ExprEvaluator evaluates conditions written in the expr-lang dialect.
// Unlike the native dialect, it is strict: evaluation failures are
// returned as errors instead of degrading to defaults. It caches
// compiled programs keyed by the expression text.
type ExprEvaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewExpr creates a new expr-lang dialect evaluator.
func NewExpr() *ExprEvaluator {
	return &ExprEvaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate evaluates an expr-lang expression against the given context
// and returns its boolean result. An empty expression defaults to true.
func (e *ExprEvaluator) Evaluate(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("cannot compile expr condition: %s", err.Error()),
			Suggestion: "check the expr syntax near the reported position",
		}
	}

	result, err := expr.Run(program, ctx)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expr condition failed: %s", err.Error()),
			Suggestion: "reference step results or scope variables that exist at this point in the run",
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expr condition yielded %T (%v), not a boolean", result, result),
			Suggestion: "make the condition a comparison or boolean combination",
		}
	}

	return boolResult, nil
}

// compile compiles an expression and caches the result.
func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()

	return program, nil
}
