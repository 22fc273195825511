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

	"github.com/itchyny/gojq"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/expression"
	"github.com/cascadehq/cascade/pkg/pipeline/guard"
)

// runTransform resolves the input collection, applies the filter
// predicate and map expression element-wise, then hands the value to
// the jq query if one is declared. Filter and map bind the current
// element to the evaluator's placeholder token.
func (r *Runner) runTransform(ctx context.Context, step *StepDefinition, execCtx *guard.ExecutionContext) (interface{}, error) {
	evalCtx := r.evalContext(execCtx)

	source, err := r.eval.ResolveValue(step.Input, evalCtx)
	if err != nil {
		return nil, err
	}

	var out interface{} = source
	if step.Filter != "" || step.Map != "" {
		items := toList(source)

		if step.Filter != "" {
			kept := make([]interface{}, 0, len(items))
			for _, item := range items {
				ok, err := r.eval.Evaluate(step.Filter, withElement(evalCtx, item))
				if err != nil {
					return nil, err
				}
				if ok {
					kept = append(kept, item)
				}
			}
			items = kept
		}

		if step.Map != "" {
			mapped := make([]interface{}, len(items))
			for i, item := range items {
				v, err := r.eval.ResolveValue(step.Map, withElement(evalCtx, item))
				if err != nil {
					return nil, err
				}
				mapped[i] = v
			}
			items = mapped
		}
		out = items
	}

	if step.Query != "" {
		return r.runQuery(ctx, step.Query, out)
	}
	return out, nil
}

// runQuery runs a jq program over the transform value. A single output
// is returned bare, multiple outputs as a list.
func (r *Runner) runQuery(ctx context.Context, query string, input interface{}) (interface{}, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "query",
			Message:    fmt.Sprintf("invalid jq program: %s", err.Error()),
			Suggestion: "check the jq program syntax",
		}
	}

	var outputs []interface{}
	iter := q.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if qerr, isErr := v.(error); isErr {
			return nil, errors.Wrap(qerr, "jq query failed")
		}
		outputs = append(outputs, v)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}

// withElement copies the evaluation context with the current element
// bound to the placeholder token.
func withElement(evalCtx map[string]interface{}, item interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(evalCtx)+1)
	for k, v := range evalCtx {
		out[k] = v
	}
	out[expression.DefaultPlaceholder] = item
	return out
}

// toList coerces a transform source to a list. A scalar becomes a
// single-element list; nil stays empty.
func toList(v interface{}) []interface{} {
	switch list := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return list
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	default:
		return []interface{}{v}
	}
}
