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
	"math"
	"regexp"
	"strings"
	"time"
)

// callPattern recognizes a function-call shape anywhere in an
// expression: an identifier immediately followed by an opening paren.
var callPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*\s*\(`)

// isCallPattern reports whether the whole expression is a single
// function call: name(...) with the closing paren at the end.
func isCallPattern(s string) bool {
	s = strings.TrimSpace(s)
	loc := callPattern.FindStringIndex(s)
	if loc == nil || loc[0] != 0 {
		return false
	}
	return strings.HasSuffix(s, ")")
}

// containsCallPattern reports whether a function call appears anywhere
// outside quotes.
func containsCallPattern(s string) bool {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if c == '(' {
			// Walk back over the identifier, if any.
			j := i - 1
			for j >= 0 && (s[j] == ' ' || s[j] == '\t') {
				j--
			}
			if j >= 0 && (isIdentChar(s[j])) {
				return true
			}
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// resolveCall parses and evaluates a full function-call expression.
func (e *Evaluator) resolveCall(expr string, ctx map[string]interface{}) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return e.resolvePath(expr, ctx), nil
	}
	name := strings.TrimSpace(expr[:open])
	inner := expr[open+1 : len(expr)-1]

	rawArgs := splitArgs(inner)
	args := make([]interface{}, 0, len(rawArgs))
	for _, raw := range rawArgs {
		val, err := e.ResolveValue(raw, ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return e.ApplyFunction(name, args, ctx)
}

// splitArgs splits a call's argument list on top-level commas,
// respecting quotes and nested parentheses.
func splitArgs(inner string) []string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	var args []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return args
}

// ApplyFunction invokes a named built-in function with already-resolved
// arguments. Calling an unrecognized name is a hard error; every other
// failure inside a function degrades to a default value.
func (e *Evaluator) ApplyFunction(name string, args []interface{}, ctx map[string]interface{}) (interface{}, error) {
	switch name {
	case "contains":
		if len(args) != 2 {
			return false, nil
		}
		return containsValue(args[0], args[1]), nil

	case "matches":
		if len(args) != 2 {
			return false, nil
		}
		return matchesPattern(args[0], args[1]), nil

	case "length", "count":
		if len(args) != 1 {
			return 0, nil
		}
		return lengthOf(args[0]), nil

	case "startsWith":
		s, p, ok := twoStrings(args)
		return ok && strings.HasPrefix(s, p), nil

	case "endsWith":
		s, p, ok := twoStrings(args)
		return ok && strings.HasSuffix(s, p), nil

	case "any":
		return e.quantify(args, ctx, false)

	case "all":
		return e.quantify(args, ctx, true)

	case "sum":
		return sumOf(listArg(args)), nil

	case "average":
		nums := numericElements(listArg(args))
		if len(nums) == 0 {
			return float64(0), nil
		}
		return sumOf(listArg(args)) / float64(len(nums)), nil

	case "min":
		return foldNumeric(listArg(args), math.Min), nil

	case "max":
		return foldNumeric(listArg(args), math.Max), nil

	case "isEmpty":
		if len(args) != 1 {
			return true, nil
		}
		return isEmptyValue(args[0]), nil

	case "abs":
		return unaryMath(args, math.Abs), nil

	case "round":
		return unaryMath(args, math.Round), nil

	case "floor":
		return unaryMath(args, math.Floor), nil

	case "ceil":
		return unaryMath(args, math.Ceil), nil

	case "between":
		if len(args) != 3 {
			return false, nil
		}
		v, vok := toNumber(args[0])
		lo, lok := toNumber(args[1])
		hi, hok := toNumber(args[2])
		return vok && lok && hok && v >= lo && v <= hi, nil

	case "now":
		return time.Now(), nil

	case "days":
		return durationSeconds(args, 24*60*60), nil

	case "hours":
		return durationSeconds(args, 60*60), nil

	case "minutes":
		return durationSeconds(args, 60), nil

	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

// quantify implements any() and all() over a list with a predicate
// string. The predicate sees the current element through the
// evaluator's placeholder token. Predicate errors count as false for
// that element, except unknown-function errors, which propagate.
func (e *Evaluator) quantify(args []interface{}, ctx map[string]interface{}, needAll bool) (interface{}, error) {
	if len(args) != 2 {
		return false, nil
	}
	list := asList(args[0])
	pred, ok := args[1].(string)
	if !ok {
		return false, nil
	}

	for _, elem := range list {
		elemCtx := make(map[string]interface{}, len(ctx)+1)
		for k, v := range ctx {
			elemCtx[k] = v
		}
		elemCtx[e.placeholder] = elem

		res, err := e.Evaluate(pred, elemCtx)
		if err != nil {
			return false, err
		}
		if needAll && !res {
			return false, nil
		}
		if !needAll && res {
			return true, nil
		}
	}
	// all over an empty list is vacuously true; any is false.
	return needAll, nil
}

func twoStrings(args []interface{}) (string, string, bool) {
	if len(args) != 2 {
		return "", "", false
	}
	a, aok := args[0].(string)
	b, bok := args[1].(string)
	return a, b, aok && bok
}

func listArg(args []interface{}) []interface{} {
	if len(args) != 1 {
		return nil
	}
	return asList(args[0])
}

func asList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func numericElements(list []interface{}) []float64 {
	var nums []float64
	for _, v := range list {
		if n, ok := toNumber(v); ok {
			nums = append(nums, n)
		}
	}
	return nums
}

func sumOf(list []interface{}) float64 {
	var total float64
	for _, n := range numericElements(list) {
		total += n
	}
	return total
}

func foldNumeric(list []interface{}, fold func(float64, float64) float64) float64 {
	nums := numericElements(list)
	if len(nums) == 0 {
		return 0
	}
	acc := nums[0]
	for _, n := range nums[1:] {
		acc = fold(acc, n)
	}
	return acc
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

func unaryMath(args []interface{}, fn func(float64) float64) float64 {
	if len(args) != 1 {
		return 0
	}
	n, ok := toNumber(args[0])
	if !ok {
		return 0
	}
	return fn(n)
}

func durationSeconds(args []interface{}, unitSeconds float64) float64 {
	if len(args) != 1 {
		return 0
	}
	n, ok := toNumber(args[0])
	if !ok {
		return 0
	}
	return n * unitSeconds
}
