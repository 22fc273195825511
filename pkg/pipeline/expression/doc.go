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

// Package expression evaluates condition and transform expressions for
// pipeline execution.
//
// Conditions may be plain string expressions, structured combinators
// (and/or/not), or lists (implicit and). String expressions support
// comparisons, arithmetic, dotted field-path access against step
// results, and a set of built-in functions. Evaluation degrades to a
// defined default (false, empty, or zero) on almost every failure path;
// the single hard error is calling an unknown function.
//
// Parsed expressions are cached keyed by the literal expression text,
// so repeated evaluation of the same condition does not re-scan the
// string.
package expression
