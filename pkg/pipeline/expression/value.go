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
	"strconv"
	"strings"
)

// ResolveValue resolves a value expression: a literal, a function call,
// an arithmetic expression, or a dotted field path, in that order.
// The only error it can return is an unknown function name; every other
// failure degrades to nil or zero.
func (e *Evaluator) ResolveValue(expr string, ctx map[string]interface{}) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	if v, ok := parseLiteral(expr); ok {
		return v, nil
	}
	if isCallPattern(expr) {
		return e.resolveCall(expr, ctx)
	}
	if hasArithmeticOp(expr) {
		n, err := e.evalArithmetic(expr, ctx)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return e.resolvePath(expr, ctx), nil
}

// resolvePath resolves a dot-separated field path. The first segment is
// looked up in the context's "results" mapping (keyed by step name)
// first, then in the context itself. Unresolved paths yield nil.
//
// A trailing ".length" segment computes length semantics for the value
// the rest of the path resolves to.
func (e *Evaluator) resolvePath(path string, ctx map[string]interface{}) interface{} {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if base, ok := strings.CutSuffix(path, ".length"); ok {
		return lengthOf(e.resolvePath(base, ctx))
	}

	segments := strings.Split(path, ".")

	// Walk from the results map first; step names shadow context keys.
	if results, ok := ctx["results"].(map[string]interface{}); ok && segments[0] != "results" {
		if v, ok := walkPath(results, segments); ok {
			return v
		}
	}
	if v, ok := walkPath(ctx, segments); ok {
		return v
	}
	return nil
}

// walkPath descends nested maps segment by segment.
func walkPath(root map[string]interface{}, segments []string) (interface{}, bool) {
	var current interface{} = root
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// parseLiteral parses quoted strings, bare integers, bare decimals,
// booleans, and null/nil. Anything else is not a literal.
func parseLiteral(tok string) (interface{}, bool) {
	tok = strings.TrimSpace(tok)
	if len(tok) >= 2 {
		if (tok[0] == '\'' && tok[len(tok)-1] == '\'') || (tok[0] == '"' && tok[len(tok)-1] == '"') {
			return tok[1 : len(tok)-1], true
		}
	}
	switch tok {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return int(i), true
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, true
	}
	return nil, false
}

// Truthy reports the truthiness of a value: nil, false, empty strings,
// and empty lists/maps are falsy; everything else, including zero, is
// truthy.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case []string:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

// toNumber coerces a value to float64 with a best-effort string parse.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// lengthOf computes length semantics: element count for lists, character
// count for strings, key count for maps, 0 for anything else.
func lengthOf(v interface{}) int {
	switch val := v.(type) {
	case string:
		return len([]rune(val))
	case []interface{}:
		return len(val)
	case []string:
		return len(val)
	case map[string]interface{}:
		return len(val)
	default:
		return 0
	}
}
