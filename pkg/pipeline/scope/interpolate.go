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

package scope

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{...}} placeholders.
var placeholderPattern = regexp.MustCompile(`\{\{([^}]*)\}\}`)

// InterpolateString replaces {{...}} placeholders in a template with
// resolved values. Placeholders may be simple keys, dotted state.x.y
// paths, or arithmetic expressions. Unresolved placeholders become the
// empty string.
func (s *State) InterpolateString(template string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interpolateLocked(template, s.evalContextLocked())
}

// InterpolateData recursively applies string interpolation through
// nested maps and lists, leaving non-string leaves untouched.
func (s *State) InterpolateData(value interface{}) interface{} {
	s.mu.RLock()
	ctx := s.evalContextLocked()
	s.mu.RUnlock()
	return s.interpolateData(value, ctx)
}

func (s *State) interpolateData(value interface{}, ctx map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if inner, pure := pureTemplate(v); pure {
			if resolved, ok := s.resolveExpr(inner, ctx); ok {
				return resolved
			}
			return ""
		}
		return s.interpolateLocked(v, ctx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, elem := range v {
			out[k] = s.interpolateData(elem, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = s.interpolateData(elem, ctx)
		}
		return out
	default:
		return value
	}
}

// interpolateLocked substitutes every placeholder in the template.
// Callers hold at least the read lock.
func (s *State) interpolateLocked(template string, ctx map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := s.resolveExpr(inner, ctx)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

// evalContextLocked builds the expression context from the flattened
// variables. The flattened map is visible both at the top level and
// under the "state" prefix.
func (s *State) evalContextLocked() map[string]interface{} {
	flat := s.flattenLocked()
	ctx := make(map[string]interface{}, len(flat)+2)
	for k, v := range flat {
		ctx[k] = v
	}
	ctx["state"] = flat
	ctx["results"] = flat
	return ctx
}

// resolveExpr resolves one placeholder body: a plain key, a dotted
// path, or an arithmetic expression handed to the evaluator.
func (s *State) resolveExpr(inner string, ctx map[string]interface{}) (interface{}, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil, false
	}

	v, err := s.eval.ResolveValue(inner, ctx)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// pureTemplate reports whether the string is exactly one placeholder,
// in which case resolution preserves the value's type.
func pureTemplate(str string) (string, bool) {
	trimmed := strings.TrimSpace(str)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := trimmed[2 : len(trimmed)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// stringify renders a resolved value for substitution into a string.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// Render whole numbers without a trailing .0 so arithmetic
		// results read naturally in templates.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
