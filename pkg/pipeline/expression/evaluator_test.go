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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]interface{} {
	return map[string]interface{}{
		"results": map[string]interface{}{
			"score":  85,
			"count":  4,
			"name":   "alice",
			"status": "ok",
			"zero":   0,
			"items":  []interface{}{1, 5, 9},
			"tags":   []interface{}{"go", "cli"},
			"fetch": map[string]interface{}{
				"response": map[string]interface{}{
					"code": 200,
					"body": "hello world",
				},
			},
		},
	}
}

func TestEvaluator_Comparisons(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "greater than", expr: "score > 80", want: true},
		{name: "greater than false", expr: "score > 90", want: false},
		{name: "greater or equal boundary", expr: "score >= 85", want: true},
		{name: "less or equal", expr: "count <= 4", want: true},
		{name: "equality with string literal", expr: "status == 'ok'", want: true},
		{name: "inequality", expr: "status != 'error'", want: true},
		{name: "numeric equality across types", expr: "score == 85.0", want: true},
		{name: "nested field path", expr: "fetch.response.code == 200", want: true},
		{name: "string contains substring", expr: "name contains 'ali'", want: true},
		{name: "list contains element", expr: "tags contains 'go'", want: true},
		{name: "list does not contain element", expr: "tags contains 'rust'", want: false},
		{name: "matches regex", expr: "name matches '^al.*e$'", want: true},
		{name: "matches invalid pattern degrades to false", expr: "name matches '['", want: false},
		{name: "between inclusive low", expr: "score between 85 and 90", want: true},
		{name: "between inclusive high", expr: "score between 80 and 85", want: true},
		{name: "between outside range", expr: "score between 90 and 100", want: false},
		{name: "unresolved path is falsy", expr: "missing.field == 'x'", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Arithmetic(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		expr string
		want float64
	}{
		{name: "multiplication binds tighter than addition", expr: "2 + 3 * 4", want: 14},
		{name: "division binds tighter than subtraction", expr: "4 - 3 / 2", want: 2.5},
		{name: "left associative subtraction", expr: "10 - 4 - 3", want: 3},
		{name: "left associative division", expr: "100 / 10 / 2", want: 5},
		{name: "modulo", expr: "10 % 3", want: 1},
		{name: "division by zero yields zero", expr: "10 / 0", want: 0},
		{name: "modulo by zero yields zero", expr: "10 % 0", want: 0},
		{name: "field path operand", expr: "count + 1", want: 5},
		{name: "non-numeric operand degrades to zero", expr: "name + 1", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ResolveValue(tt.expr, ctx)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluator_MathematicalComparison(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "arithmetic on left side", expr: "count + 1 >= 5", want: true},
		{name: "arithmetic on both sides", expr: "count * 2 == 4 + 4", want: true},
		{name: "division by zero comparison", expr: "10 / 0 == 0", want: true},
		{name: "modulo by zero comparison", expr: "10 % 0 == 0", want: true},
		{name: "precedence inside comparison", expr: "2 + 3 * 4 == 14", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Truthiness(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		cond interface{}
		want bool
	}{
		{name: "nil condition is true", cond: nil, want: true},
		{name: "empty string condition is true", cond: "", want: true},
		{name: "bool passes through", cond: false, want: false},
		{name: "present path is truthy", cond: "name", want: true},
		{name: "zero is truthy", cond: "zero", want: true},
		{name: "absent path is falsy", cond: "missing", want: false},
		{name: "non-empty list is truthy", cond: "items", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Combinators(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		cond interface{}
		want bool
	}{
		{
			name: "and requires all",
			cond: map[string]interface{}{"and": []interface{}{"score > 80", "count < 10"}},
			want: true,
		},
		{
			name: "and fails on one",
			cond: map[string]interface{}{"and": []interface{}{"score > 80", "count > 10"}},
			want: false,
		},
		{
			name: "or needs any",
			cond: map[string]interface{}{"or": []interface{}{"score > 90", "count == 4"}},
			want: true,
		},
		{
			name: "not negates",
			cond: map[string]interface{}{"not": "score > 90"},
			want: true,
		},
		{
			name: "list is implicit and",
			cond: []interface{}{"score > 80", "status == 'ok'"},
			want: true,
		},
		{
			name: "nested combinators",
			cond: map[string]interface{}{"and": []interface{}{
				"score > 80",
				map[string]interface{}{"or": []interface{}{"count > 10", "status == 'ok'"}},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_MalformedCombinator(t *testing.T) {
	e := New()
	_, err := e.Evaluate(map[string]interface{}{"xor": []interface{}{"a", "b"}}, testContext())
	require.Error(t, err)
}

func TestEvaluator_LengthSuffix(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "list length", expr: "items.length == 3", want: true},
		{name: "string length", expr: "name.length == 5", want: true},
		{name: "map length", expr: "fetch.response.length == 2", want: true},
		{name: "length of scalar is zero", expr: "score.length == 0", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_CacheReuse(t *testing.T) {
	e := New()
	ctx := testContext()

	for i := 0; i < 3; i++ {
		got, err := e.Evaluate("score > 80", ctx)
		require.NoError(t, err)
		assert.True(t, got)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}

func TestEvaluator_UnknownFunctionIsHardError(t *testing.T) {
	e := New()

	_, err := e.Evaluate("frobnicate(name)", testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")
}

func TestEvaluator_UnknownFunctionInsideArithmetic(t *testing.T) {
	e := New()
	ctx := testContext()

	tests := []struct {
		name string
		expr string
	}{
		{name: "arithmetic comparison", expr: "frobnicate() + 1 > 0"},
		{name: "right operand", expr: "score > frobnicate(count) * 2"},
		{name: "bare arithmetic", expr: "frobnicate(count) + 1"},
		{name: "comparison operand", expr: "frobnicate() == 1"},
		{name: "between bound", expr: "score between frobnicate() and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Evaluate(tt.expr, ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unknown function")
		})
	}
}

func TestResolveValue_UnknownFunctionInsideArithmetic(t *testing.T) {
	e := New()

	_, err := e.ResolveValue("frobnicate() + 1", testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")
}
