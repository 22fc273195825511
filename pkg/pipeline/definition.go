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

// Package pipeline provides the orchestration layer: YAML pipeline
// definitions, a registry, and a runner that executes steps through a
// caller-supplied step executor while enforcing safety limits and
// recording execution traces.
package pipeline

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/expression"
	"github.com/cascadehq/cascade/pkg/pipeline/scope"
)

// StepType identifies how a step is dispatched.
type StepType string

const (
	// StepTask hands the step to the external step executor.
	StepTask StepType = "task"
	// StepPipeline invokes another registered pipeline as a nested run.
	StepPipeline StepType = "pipeline"
	// StepTransform filters, maps, or queries a collection in scope.
	StepTransform StepType = "transform"
	// StepLoop repeats a body of steps until a condition holds.
	StepLoop StepType = "loop"
)

// Definition is a YAML-based pipeline definition: an identifier, initial
// variables, and an ordered list of steps.
type Definition struct {
	// Name is the pipeline identifier, used for registry lookups and
	// circular-invocation detection.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Description provides human-readable context about the pipeline.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version tracks the definition schema version (optional).
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Variables seed the global scope before the first step runs.
	Variables map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Steps are the executable units of the pipeline.
	Steps []StepDefinition `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}

// StepDefinition represents a single step in a pipeline.
//
// The Type field selects which of the type-specific fields apply: task
// steps use Action and With, pipeline steps use Pipeline, transform
// steps use Input/Filter/Map/Query, and loop steps use Body, Until, and
// MaxIterations. Register stores the step result under a variable name
// in the chosen scope tier.
type StepDefinition struct {
	// ID is the unique step identifier within this pipeline.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Name is a human-readable step name (optional).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Type selects the step dispatch.
	Type StepType `yaml:"type" json:"type" validate:"required,oneof=task pipeline transform loop"`

	// Condition gates the step. It may be a string expression, a bool,
	// a list (implicit and), or an and/or/not combinator map. A nil
	// condition always admits the step.
	Condition interface{} `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Dialect selects the condition grammar: "native" (default) or
	// "expr" for expr-lang conditions, which must be strings.
	Dialect string `yaml:"dialect,omitempty" json:"dialect,omitempty" validate:"omitempty,oneof=native expr"`

	// Action names the operation for task steps.
	Action string `yaml:"action,omitempty" json:"action,omitempty"`

	// With carries task parameters. String values are interpolated
	// against the live scope before the executor sees them.
	With map[string]interface{} `yaml:"with,omitempty" json:"with,omitempty"`

	// Pipeline names the registered pipeline to invoke for pipeline
	// steps.
	Pipeline string `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`

	// Input is the expression yielding the source collection for
	// transform steps.
	Input string `yaml:"input,omitempty" json:"input,omitempty"`

	// Filter keeps elements for which this predicate holds. The current
	// element is bound to the evaluator's placeholder token.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	// Map rewrites each element through this value expression.
	Map string `yaml:"map,omitempty" json:"map,omitempty"`

	// Query applies a jq program to the (filtered, mapped) value.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`

	// Until stops a loop once it evaluates truthy. Checked after each
	// iteration, so the body always runs at least once.
	Until interface{} `yaml:"until,omitempty" json:"until,omitempty"`

	// MaxIterations caps loop iterations. Defaults to
	// DefaultMaxIterations when zero.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// Body holds the steps repeated by a loop step.
	Body []StepDefinition `yaml:"body,omitempty" json:"body,omitempty" validate:"omitempty,dive"`

	// Register stores the step result under this variable name.
	Register string `yaml:"register,omitempty" json:"register,omitempty"`

	// Scope is the tier Register writes to. Defaults to global.
	Scope scope.Scope `yaml:"scope,omitempty" json:"scope,omitempty" validate:"omitempty,oneof=global session loop"`
}

var validate = validator.New()

// Parse decodes a YAML pipeline definition and validates it.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &errors.ValidationError{
			Field:      "definition",
			Message:    fmt.Sprintf("invalid YAML: %s", err.Error()),
			Suggestion: "check the definition file syntax",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks struct constraints and the structural rules the tag
// language cannot express: unique step ids (including loop bodies) and
// the per-type required fields.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			v := verrs[0]
			return &errors.ValidationError{
				Field:      v.Namespace(),
				Message:    fmt.Sprintf("failed %q constraint", v.Tag()),
				Suggestion: "check the definition against the step reference",
			}
		}
		return err
	}

	seen := make(map[string]bool)
	return validateSteps(d.Steps, seen)
}

func validateSteps(steps []StepDefinition, seen map[string]bool) error {
	for i := range steps {
		step := &steps[i]
		if seen[step.ID] {
			return &errors.ValidationError{
				Field:      "steps",
				Message:    fmt.Sprintf("duplicate step id %q", step.ID),
				Suggestion: "step ids must be unique across the pipeline, including loop bodies",
			}
		}
		seen[step.ID] = true

		if err := validateStep(step); err != nil {
			return err
		}
		if len(step.Body) > 0 {
			if err := validateSteps(step.Body, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStep(step *StepDefinition) error {
	fail := func(field, message, suggestion string) error {
		return &errors.ValidationError{
			Field:      fmt.Sprintf("steps[%s].%s", step.ID, field),
			Message:    message,
			Suggestion: suggestion,
		}
	}

	switch step.Type {
	case StepTask:
		if step.Action == "" {
			return fail("action", "task steps require an action", "name the operation the step executor should run")
		}
	case StepPipeline:
		if step.Pipeline == "" {
			return fail("pipeline", "pipeline steps require a pipeline name", "reference a registered pipeline")
		}
	case StepTransform:
		if step.Input == "" {
			return fail("input", "transform steps require an input expression", "point input at a variable or path holding the collection")
		}
		if step.Filter == "" && step.Map == "" && step.Query == "" {
			return fail("transform", "transform steps require at least one of filter, map, or query", "add a filter predicate, a map expression, or a jq query")
		}
	case StepLoop:
		if len(step.Body) == 0 {
			return fail("body", "loop steps require a non-empty body", "add the steps to repeat")
		}
	}

	if step.Dialect == expression.DialectExpr {
		if _, ok := step.Condition.(string); !ok {
			return fail("condition", "expr dialect conditions must be strings", "write the condition as a single expr-lang expression")
		}
	}
	return nil
}
