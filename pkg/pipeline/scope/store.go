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

// Package scope implements the three-tier variable store used by
// pipeline execution: global, session, and loop scopes with
// loop > session > global lookup precedence, plus {{...}} string
// interpolation over the stored values.
package scope

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/cascadehq/cascade/pkg/errors"
	"github.com/cascadehq/cascade/pkg/pipeline/expression"
)

// Scope names a variable tier.
type Scope string

const (
	// ScopeGlobal holds values that outlive a single nested invocation.
	ScopeGlobal Scope = "global"
	// ScopeSession holds values spanning one logical conversation.
	ScopeSession Scope = "session"
	// ScopeLoop holds values cleared at loop-iteration boundaries.
	ScopeLoop Scope = "loop"
)

// State is a three-tier key-value store. Lookup precedence is
// loop > session > global. It is safe for concurrent use; global-scope
// merges hold the write lock for the duration of the merge.
type State struct {
	mu sync.RWMutex

	global  map[string]interface{}
	session map[string]interface{}
	loop    map[string]interface{}

	// Current-step bookkeeping, carried through serialization.
	currentStep string
	stepIndex   int

	eval *expression.Evaluator
}

// NewState creates an empty scope store.
func NewState() *State {
	return &State{
		global:  make(map[string]interface{}),
		session: make(map[string]interface{}),
		loop:    make(map[string]interface{}),
		eval:    expression.New(),
	}
}

// SetVariables merges values into one scope. Values that are template
// strings referencing existing state (e.g. "{{state.count + 1}}") are
// resolved through the expression evaluator before storage; a value
// that is exactly one placeholder keeps the resolved value's type.
func (s *State) SetVariables(values map[string]interface{}, scope Scope) error {
	tier, err := s.tier(scope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range values {
		tier[key] = s.resolveValueLocked(value)
	}
	return nil
}

// GetVariable returns the first hit walking loop, then session, then
// global scope. The second return reports whether the key was found.
func (s *State) GetVariable(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tier := range []map[string]interface{}{s.loop, s.session, s.global} {
		if v, ok := tier[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// GetAllVariables returns one flattened map with scope precedence
// applied: loop values shadow session values shadow global values.
func (s *State) GetAllVariables() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flattenLocked()
}

func (s *State) flattenLocked() map[string]interface{} {
	flat := make(map[string]interface{}, len(s.global)+len(s.session)+len(s.loop))
	for k, v := range s.global {
		flat[k] = v
	}
	for k, v := range s.session {
		flat[k] = v
	}
	for k, v := range s.loop {
		flat[k] = v
	}
	return flat
}

// ClearScope empties exactly one tier, leaving the others untouched.
func (s *State) ClearScope(scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scope {
	case ScopeGlobal:
		s.global = make(map[string]interface{})
	case ScopeSession:
		s.session = make(map[string]interface{})
	case ScopeLoop:
		s.loop = make(map[string]interface{})
	default:
		return &errors.ValidationError{
			Field:      "scope",
			Message:    "unknown scope " + string(scope),
			Suggestion: "use global, session, or loop",
		}
	}
	return nil
}

// SetCurrentStep records which step is executing. The bookkeeping
// survives serialization round-trips.
func (s *State) SetCurrentStep(name string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStep = name
	s.stepIndex = index
}

// CurrentStep returns the current step name and index.
func (s *State) CurrentStep() (string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStep, s.stepIndex
}

// Size returns the number of distinct keys visible across all tiers.
func (s *State) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flattenLocked())
}

func (s *State) tier(scope Scope) (map[string]interface{}, error) {
	switch scope {
	case ScopeGlobal, "":
		return s.global, nil
	case ScopeSession:
		return s.session, nil
	case ScopeLoop:
		return s.loop, nil
	default:
		return nil, &errors.ValidationError{
			Field:      "scope",
			Message:    "unknown scope " + string(scope),
			Suggestion: "use global, session, or loop",
		}
	}
}

// resolveValueLocked resolves template values against current state
// before storage. Caller holds the write lock.
func (s *State) resolveValueLocked(value interface{}) interface{} {
	str, ok := value.(string)
	if !ok || !strings.Contains(str, "{{") {
		return value
	}
	ctx := s.evalContextLocked()
	if inner, pure := pureTemplate(str); pure {
		if v, ok := s.resolveExpr(inner, ctx); ok {
			return v
		}
		return ""
	}
	return s.interpolateLocked(str, ctx)
}

// serializedState is the wire form of a State.
type serializedState struct {
	Global      map[string]interface{} `json:"global"`
	Session     map[string]interface{} `json:"session"`
	Loop        map[string]interface{} `json:"loop"`
	CurrentStep string                 `json:"current_step,omitempty"`
	StepIndex   int                    `json:"step_index,omitempty"`
}

// Serialize encodes the three scopes plus current-step bookkeeping.
func (s *State) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return json.Marshal(serializedState{
		Global:      s.global,
		Session:     s.session,
		Loop:        s.loop,
		CurrentStep: s.currentStep,
		StepIndex:   s.stepIndex,
	})
}

// Deserialize reconstructs a State from its serialized form. Invalid
// input yields an empty state rather than an error.
func Deserialize(data []byte) *State {
	state := NewState()

	var wire serializedState
	if err := json.Unmarshal(data, &wire); err != nil {
		return state
	}
	if wire.Global != nil {
		state.global = wire.Global
	}
	if wire.Session != nil {
		state.session = wire.Session
	}
	if wire.Loop != nil {
		state.loop = wire.Loop
	}
	state.currentStep = wire.CurrentStep
	state.stepIndex = wire.StepIndex
	return state
}
