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
	"math"
	"reflect"
	"regexp"
	"strings"
)

// arithmeticChars are the supported arithmetic operators.
const arithmeticChars = "+-*/%"

// hasArithmeticOp reports whether the expression contains an arithmetic
// operator outside quotes. A minus is only counted when it is binary:
// a leading minus or one directly following another operator is a sign.
func hasArithmeticOp(s string) bool {
	var quote byte
	prevMeaningful := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case ' ', '\t':
			continue
		case '+', '*', '/', '%':
			return true
		case '-':
			if prevMeaningful != 0 && !strings.ContainsRune(arithmeticChars, rune(prevMeaningful)) && prevMeaningful != '(' && prevMeaningful != ',' {
				return true
			}
		}
		prevMeaningful = c
	}
	return false
}

// evalArithmetic evaluates an arithmetic expression with conventional
// precedence. It repeatedly splits on the rightmost same-tier operator,
// so "a - b - c" evaluates as "(a - b) - c". Division and modulo by
// zero yield 0; operands that cannot be coerced to a number yield 0.
// An unknown function name in any operand propagates as an error.
func (e *Evaluator) evalArithmetic(s string, ctx map[string]interface{}) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if idx, op := rightmostOperator(s, "+-"); idx >= 0 {
		left, err := e.evalArithmetic(s[:idx], ctx)
		if err != nil {
			return 0, err
		}
		right, err := e.evalArithmetic(s[idx+1:], ctx)
		if err != nil {
			return 0, err
		}
		if op == '+' {
			return left + right, nil
		}
		return left - right, nil
	}
	if idx, op := rightmostOperator(s, "*/%"); idx >= 0 {
		left, err := e.evalArithmetic(s[:idx], ctx)
		if err != nil {
			return 0, err
		}
		right, err := e.evalArithmetic(s[idx+1:], ctx)
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			return left * right, nil
		case '/':
			if right == 0 {
				return 0, nil
			}
			return left / right, nil
		default:
			if right == 0 {
				return 0, nil
			}
			return math.Mod(left, right), nil
		}
	}

	return e.numericOperand(s, ctx)
}

// rightmostOperator finds the rightmost occurrence of any operator in
// tier, skipping quoted regions, parenthesized call arguments, and
// unary minus signs.
func rightmostOperator(s string, tier string) (int, byte) {
	depth := 0
	var quote byte
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case ')':
			depth++
			continue
		case '(':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 || !strings.ContainsRune(tier, rune(c)) {
			continue
		}
		if c == '-' && isUnaryMinus(s, i) {
			continue
		}
		return i, c
	}
	return -1, 0
}

// isUnaryMinus reports whether the minus at index i is a sign rather
// than a binary operator.
func isUnaryMinus(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t':
			continue
		case '+', '-', '*', '/', '%', '(', ',':
			return true
		default:
			return false
		}
	}
	return true // leading minus
}

// numericOperand resolves a single operand and coerces it to a number,
// degrading to 0 when coercion fails. Unknown function names propagate.
func (e *Evaluator) numericOperand(s string, ctx map[string]interface{}) (float64, error) {
	v, err := e.resolveOperand(s, ctx)
	if err != nil {
		return 0, err
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, nil
	}
	return n, nil
}

// compare applies a comparison or membership operator to two resolved
// operands. Failures degrade to false.
func compare(left interface{}, op string, right interface{}) bool {
	switch strings.TrimSpace(op) {
	case "==":
		return equalValues(left, right)
	case "!=":
		return !equalValues(left, right)
	case ">", "<", ">=", "<=":
		return compareOrdered(left, strings.TrimSpace(op), right)
	case "contains":
		return containsValue(left, right)
	case "matches":
		return matchesPattern(left, right)
	default:
		return false
	}
}

// equalValues compares numerically when both operands coerce to
// numbers, otherwise by deep equality.
func equalValues(left, right interface{}) bool {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		return ln == rn
	}
	return reflect.DeepEqual(left, right)
}

// compareOrdered handles > < >= <=. Numbers compare numerically;
// two non-numeric strings compare lexicographically; anything else is
// false.
func compareOrdered(left interface{}, op string, right interface{}) bool {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		switch op {
		case ">":
			return ln > rn
		case "<":
			return ln < rn
		case ">=":
			return ln >= rn
		default:
			return ln <= rn
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case ">":
			return ls > rs
		case "<":
			return ls < rs
		case ">=":
			return ls >= rs
		default:
			return ls <= rs
		}
	}
	return false
}

// containsValue implements membership: substring for strings, element
// for lists, key presence for maps.
func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case nil:
		return false
	case string:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		return strings.Contains(h, n)
	case []interface{}:
		for _, elem := range h {
			if equalValues(elem, needle) {
				return true
			}
		}
		return false
	case []string:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		for _, elem := range h {
			if elem == n {
				return true
			}
		}
		return false
	case map[string]interface{}:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		_, present := h[n]
		return present
	default:
		return false
	}
}

// matchesPattern applies a regular expression match. Invalid patterns
// return false, never an error.
func matchesPattern(value, pattern interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
