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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/errors"
)

const sampleYAML = `
name: order-flow
description: fetches and reconciles orders
variables:
  region: eu-west
steps:
  - id: fetch
    type: task
    action: http.get
    with:
      url: "https://example.com/{{region}}/orders"
  - id: reconcile
    type: pipeline
    pipeline: reconcile-orders
    condition: "region == 'eu-west'"
  - id: totals
    type: transform
    input: orders
    filter: "item.amount > 0"
    query: "map(.amount) | add"
  - id: retry
    type: loop
    max_iterations: 3
    until: "attempts >= 2"
    body:
      - id: poll
        type: task
        action: http.get
        register: attempts
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "order-flow", def.Name)
	assert.Equal(t, map[string]interface{}{"region": "eu-west"}, def.Variables)
	require.Len(t, def.Steps, 4)

	assert.Equal(t, StepTask, def.Steps[0].Type)
	assert.Equal(t, "http.get", def.Steps[0].Action)
	assert.Equal(t, StepPipeline, def.Steps[1].Type)
	assert.Equal(t, "reconcile-orders", def.Steps[1].Pipeline)
	assert.Equal(t, StepTransform, def.Steps[2].Type)
	assert.Equal(t, StepLoop, def.Steps[3].Type)
	require.Len(t, def.Steps[3].Body, 1)
	assert.Equal(t, "attempts", def.Steps[3].Body[0].Register)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("steps: ["))

	var vErr *errors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "definition", vErr.Field)
}

func TestValidate(t *testing.T) {
	task := func(id string) StepDefinition {
		return StepDefinition{ID: id, Type: StepTask, Action: "noop"}
	}

	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name: "valid",
			def:  Definition{Name: "ok", Steps: []StepDefinition{task("a")}},
		},
		{
			name:    "missing name",
			def:     Definition{Steps: []StepDefinition{task("a")}},
			wantErr: "required",
		},
		{
			name:    "no steps",
			def:     Definition{Name: "empty"},
			wantErr: "required",
		},
		{
			name: "duplicate step ids",
			def: Definition{Name: "dup", Steps: []StepDefinition{
				task("a"), task("a"),
			}},
			wantErr: "duplicate step id",
		},
		{
			name: "duplicate id inside loop body",
			def: Definition{Name: "dup-body", Steps: []StepDefinition{
				task("a"),
				{ID: "l", Type: StepLoop, Body: []StepDefinition{task("a")}},
			}},
			wantErr: "duplicate step id",
		},
		{
			name: "task without action",
			def: Definition{Name: "t", Steps: []StepDefinition{
				{ID: "a", Type: StepTask},
			}},
			wantErr: "require an action",
		},
		{
			name: "pipeline without target",
			def: Definition{Name: "p", Steps: []StepDefinition{
				{ID: "a", Type: StepPipeline},
			}},
			wantErr: "require a pipeline name",
		},
		{
			name: "transform without input",
			def: Definition{Name: "tr", Steps: []StepDefinition{
				{ID: "a", Type: StepTransform, Filter: "item > 0"},
			}},
			wantErr: "require an input",
		},
		{
			name: "transform without operations",
			def: Definition{Name: "tr2", Steps: []StepDefinition{
				{ID: "a", Type: StepTransform, Input: "items"},
			}},
			wantErr: "at least one of filter, map, or query",
		},
		{
			name: "loop without body",
			def: Definition{Name: "l", Steps: []StepDefinition{
				{ID: "a", Type: StepLoop, Until: "done"},
			}},
			wantErr: "non-empty body",
		},
		{
			name: "expr dialect with non-string condition",
			def: Definition{Name: "d", Steps: []StepDefinition{
				{ID: "a", Type: StepTask, Action: "noop", Dialect: "expr", Condition: true},
			}},
			wantErr: "must be strings",
		},
		{
			name: "unknown step type",
			def: Definition{Name: "u", Steps: []StepDefinition{
				{ID: "a", Type: "webhook"},
			}},
			wantErr: "oneof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	def := &Definition{Name: "etl", Steps: []StepDefinition{
		{ID: "a", Type: StepTask, Action: "noop"},
	}}
	require.NoError(t, r.Register(def))

	got, err := r.Get("etl")
	require.NoError(t, err)
	assert.Equal(t, def, got)

	err = r.Register(def)
	var vErr *errors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "already registered")

	_, err = r.Get("missing")
	var nfErr *errors.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "pipeline", nfErr.Resource)

	require.NoError(t, r.Register(&Definition{Name: "audit", Steps: []StepDefinition{
		{ID: "b", Type: StepTask, Action: "noop"},
	}}))
	assert.Equal(t, []string{"audit", "etl"}, r.List())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Definition{Name: "bad"}))
	assert.Empty(t, r.List())
}
