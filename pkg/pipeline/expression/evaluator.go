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
	"strings"
	"sync"

	"github.com/cascadehq/cascade/pkg/errors"
)

// DefaultPlaceholder is the token that refers to the current element
// inside any()/all() predicate strings.
const DefaultPlaceholder = "item"

// comparisonOps lists the recognized comparison and membership
// operators. Order matters: an expression is split on the first
// operator in this list that occurs in it, so " >= " must be tried
// before " > " and " between " before everything else.
var comparisonOps = []string{
	" between ",
	" >= ",
	" <= ",
	" == ",
	" != ",
	" > ",
	" < ",
	" contains ",
	" matches ",
}

// Evaluator evaluates condition and value expressions against a context
// of named values. It caches the parsed form of each unique expression
// string for repeated evaluations.
type Evaluator struct {
	placeholder string

	cache map[string]*program
	mu    sync.RWMutex
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPlaceholder overrides the element placeholder token used by
// any()/all() predicate strings.
func WithPlaceholder(token string) Option {
	return func(e *Evaluator) {
		if token != "" {
			e.placeholder = token
		}
	}
}

// New creates a new expression evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		placeholder: DefaultPlaceholder,
		cache:       make(map[string]*program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates a condition against the given context and returns
// its boolean result.
//
// A condition may be:
//   - nil: always true
//   - bool: itself
//   - string: evaluated as an expression
//   - []interface{}: implicit "and" over the elements
//   - map with key "and", "or", or "not": structured combinator
//
// The context should contain a "results" map keyed by step name; other
// top-level keys (scope variables, loop placeholders) are resolvable as
// field paths too.
func (e *Evaluator) Evaluate(condition interface{}, ctx map[string]interface{}) (bool, error) {
	switch c := condition.(type) {
	case nil:
		return true, nil
	case bool:
		return c, nil
	case string:
		if c == "" {
			return true, nil
		}
		return e.evaluateString(c, ctx)
	case []interface{}:
		return e.evaluateAll(c, ctx)
	case []string:
		conds := make([]interface{}, len(c))
		for i, s := range c {
			conds[i] = s
		}
		return e.evaluateAll(conds, ctx)
	case map[string]interface{}:
		return e.evaluateCombinator(c, ctx)
	default:
		return Truthy(condition), nil
	}
}

// evaluateAll is the implicit "and" over a list of conditions.
func (e *Evaluator) evaluateAll(conditions []interface{}, ctx map[string]interface{}) (bool, error) {
	for _, c := range conditions {
		ok, err := e.Evaluate(c, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateCombinator handles the structured and/or/not forms.
func (e *Evaluator) evaluateCombinator(m map[string]interface{}, ctx map[string]interface{}) (bool, error) {
	if sub, ok := m["and"]; ok {
		list, ok := sub.([]interface{})
		if !ok {
			return false, &errors.ValidationError{
				Field:      "and",
				Message:    "combinator requires a list of conditions",
				Suggestion: "use a YAML/JSON list under the and key",
			}
		}
		return e.evaluateAll(list, ctx)
	}
	if sub, ok := m["or"]; ok {
		list, ok := sub.([]interface{})
		if !ok {
			return false, &errors.ValidationError{
				Field:      "or",
				Message:    "combinator requires a list of conditions",
				Suggestion: "use a YAML/JSON list under the or key",
			}
		}
		for _, c := range list {
			res, err := e.Evaluate(c, ctx)
			if err != nil {
				return false, err
			}
			if res {
				return true, nil
			}
		}
		return false, nil
	}
	if sub, ok := m["not"]; ok {
		res, err := e.Evaluate(sub, ctx)
		if err != nil {
			return false, err
		}
		return !res, nil
	}
	return false, &errors.ValidationError{
		Field:      "condition",
		Message:    "structured condition must use and, or, or not",
		Suggestion: "wrap conditions in one of the supported combinators",
	}
}

// evaluateString dispatches a string expression to the right evaluation
// strategy and applies truthiness where the result is not already a
// boolean.
func (e *Evaluator) evaluateString(expr string, ctx map[string]interface{}) (bool, error) {
	prog := e.compile(expr)

	switch prog.kind {
	case progMathCompare:
		left, err := e.arithmeticOrValue(prog.lhs, ctx)
		if err != nil {
			return false, err
		}
		if prog.op == " between " {
			return e.evalBetween(left, prog.rhs, ctx)
		}
		right, err := e.arithmeticOrValue(prog.rhs, ctx)
		if err != nil {
			return false, err
		}
		return compare(left, prog.op, right), nil

	case progFuncCompare:
		left, err := e.ResolveValue(prog.lhs, ctx)
		if err != nil {
			return false, err
		}
		if prog.op == " between " {
			return e.evalBetween(left, prog.rhs, ctx)
		}
		right, err := e.ResolveValue(prog.rhs, ctx)
		if err != nil {
			return false, err
		}
		return compare(left, prog.op, right), nil

	case progFuncValue:
		val, err := e.ResolveValue(expr, ctx)
		if err != nil {
			return false, err
		}
		return Truthy(val), nil

	case progCompare:
		left, err := e.resolveOperand(prog.lhs, ctx)
		if err != nil {
			return false, err
		}
		if prog.op == " between " {
			return e.evalBetween(left, prog.rhs, ctx)
		}
		right, err := e.resolveOperand(prog.rhs, ctx)
		if err != nil {
			return false, err
		}
		return compare(left, prog.op, right), nil

	case progArith:
		val, err := e.evalArithmetic(expr, ctx)
		if err != nil {
			return false, err
		}
		return Truthy(val), nil

	default: // progPath
		return Truthy(e.resolvePath(expr, ctx)), nil
	}
}

// evalBetween handles the "X between A and B" form: the right-hand side
// is split on " and " and the three operands are passed to the between
// builtin. Inclusive on both bounds.
func (e *Evaluator) evalBetween(value interface{}, rhs string, ctx map[string]interface{}) (bool, error) {
	low, high, ok := strings.Cut(rhs, " and ")
	if !ok {
		return false, nil
	}
	lo, err := e.arithmeticOrValue(low, ctx)
	if err != nil {
		return false, err
	}
	hi, err := e.arithmeticOrValue(high, ctx)
	if err != nil {
		return false, err
	}
	res, err := e.ApplyFunction("between", []interface{}{value, lo, hi}, ctx)
	if err != nil {
		return false, err
	}
	b, _ := res.(bool)
	return b, nil
}

// arithmeticOrValue evaluates a sub-expression that may be arithmetic;
// plain operands resolve as literals or field paths. An unknown
// function name anywhere inside is the one error it can return.
func (e *Evaluator) arithmeticOrValue(s string, ctx map[string]interface{}) (interface{}, error) {
	s = strings.TrimSpace(s)
	if hasArithmeticOp(s) {
		n, err := e.evalArithmetic(s, ctx)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return e.resolveOperand(s, ctx)
}

// resolveOperand resolves a single operand: a literal if it parses as
// one, a function call, otherwise a field path against the context.
// Unknown function names propagate as errors.
func (e *Evaluator) resolveOperand(s string, ctx map[string]interface{}) (interface{}, error) {
	s = strings.TrimSpace(s)
	if v, ok := parseLiteral(s); ok {
		return v, nil
	}
	if isCallPattern(s) {
		return e.resolveCall(s, ctx)
	}
	return e.resolvePath(s, ctx), nil
}

// program is the cached, classified form of one expression string.
type program struct {
	kind programKind
	op   string
	lhs  string
	rhs  string
}

type programKind int

const (
	progPath programKind = iota
	progArith
	progCompare
	progFuncValue
	progFuncCompare
	progMathCompare
)

// compile classifies an expression string once and caches the result
// keyed by the literal text.
func (e *Evaluator) compile(expr string) *program {
	e.mu.RLock()
	if p, ok := e.cache[expr]; ok {
		e.mu.RUnlock()
		return p
	}
	e.mu.RUnlock()

	p := classify(expr, e.placeholder)

	e.mu.Lock()
	e.cache[expr] = p
	e.mu.Unlock()
	return p
}

// classify applies the dispatch priority from most to least specific:
// mathematical comparison, function expression, bare comparison,
// arithmetic, field path.
func classify(expr string, placeholder string) *program {
	hasArith := hasArithmeticOp(expr)
	op, lhs, rhs := splitComparison(expr)

	if hasArith && op != "" {
		return &program{kind: progMathCompare, op: op, lhs: lhs, rhs: rhs}
	}
	if containsCallPattern(expr) {
		if op != "" {
			return &program{kind: progFuncCompare, op: op, lhs: lhs, rhs: rhs}
		}
		return &program{kind: progFuncValue}
	}
	if op != "" {
		return &program{kind: progCompare, op: op, lhs: lhs, rhs: rhs}
	}
	if hasArith {
		return &program{kind: progArith}
	}
	return &program{kind: progPath}
}

// splitComparison finds the first comparison operator by priority order
// and splits the expression at its first textual occurrence. The split
// happens at the top level only: operators inside quotes or parentheses
// do not count.
func splitComparison(expr string) (op, lhs, rhs string) {
	for _, candidate := range comparisonOps {
		if idx := indexTopLevel(expr, candidate); idx >= 0 {
			return candidate, strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+len(candidate):])
		}
	}
	return "", "", ""
}

// indexTopLevel returns the index of the first occurrence of sub in s
// that is not inside quotes or parentheses, or -1.
func indexTopLevel(s, sub string) int {
	depth := 0
	var quote byte
	for i := 0; i+len(sub) <= len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 && s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
