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
	"fmt"
	"sort"
	"sync"

	"github.com/cascadehq/cascade/pkg/errors"
)

// Registry holds validated pipeline definitions by name. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Register validates a definition and stores it. Registering a name
// twice is rejected.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &errors.ValidationError{
			Field:   "definition",
			Message: "definition cannot be nil",
		}
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return &errors.ValidationError{
			Field:      "name",
			Message:    fmt.Sprintf("pipeline %s is already registered", def.Name),
			Suggestion: "use a unique pipeline name",
		}
	}
	r.defs[def.Name] = def
	return nil
}

// Get retrieves a definition by name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "pipeline", ID: name}
	}
	return def, nil
}

// List returns the registered pipeline names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
