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

func TestExprEvaluator_Conditions(t *testing.T) {
	e := NewExpr()
	ctx := map[string]interface{}{"score": 85, "name": "alice"}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "comparison", expr: "score > 80", want: true},
		{name: "comparison false", expr: "score > 90", want: false},
		{name: "string equality", expr: `name == "alice"`, want: true},
		{name: "boolean combination", expr: `score >= 80 && name != ""`, want: true},
		{name: "undefined variable is nil", expr: "missing == nil", want: true},
		{name: "empty defaults true", expr: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExprEvaluator_CompileError(t *testing.T) {
	e := NewExpr()

	_, err := e.Evaluate("score >", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compile expr condition")
}

func TestExprEvaluator_NonBooleanResult(t *testing.T) {
	e := NewExpr()

	_, err := e.Evaluate("1 + 1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a boolean")
}

func TestExprEvaluator_CacheReuse(t *testing.T) {
	e := NewExpr()
	ctx := map[string]interface{}{"n": 2}

	for i := 0; i < 3; i++ {
		got, err := e.Evaluate("n < 5", ctx)
		require.NoError(t, err)
		assert.True(t, got)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}
