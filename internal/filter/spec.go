// Package filter turns user-supplied constraints into typed specs and composes
// them into predicate pipelines that sources run over their raw records.
package filter

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Mode is the comparison applied by a Spec.
type Mode int

const (
	Exact Mode = iota
	CaseInsensitive
	Regex
	Range
	SetMembership
)

func (m Mode) String() string {
	switch m {
	case Exact:
		return "exact"
	case CaseInsensitive:
		return "case-insensitive"
	case Regex:
		return "regex"
	case Range:
		return "range"
	case SetMembership:
		return "set"
	default:
		return "unknown"
	}
}

// Operator is a comparison operator of a range expression.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Operators lists the supported range operators.
var Operators = []Operator{OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual}

// rangePattern captures an optional operator prefix followed by a number.
var rangePattern = regexp.MustCompile(`^\s*([^\d\s+\-.]*)\s*([+-]?\d+(?:\.\d+)?)\s*$`)

// RangeExpr is one parsed "<operator><operand>" expression.
type RangeExpr struct {
	Operator Operator
	Operand  string
	value    float64
}

// Eval reports whether n satisfies the expression.
func (r RangeExpr) Eval(n float64) bool {
	switch r.Operator {
	case OpEqual:
		return n == r.value
	case OpNotEqual:
		return n != r.value
	case OpLess:
		return n < r.value
	case OpLessEqual:
		return n <= r.value
	case OpGreater:
		return n > r.value
	case OpGreaterEqual:
		return n >= r.value
	}
	return false
}

func (r RangeExpr) String() string {
	return string(r.Operator) + r.Operand
}

// ParseRange parses a single range expression. A bare number means "==".
func ParseRange(filterName, expr string) (RangeExpr, error) {
	m := rangePattern.FindStringSubmatch(expr)
	if m == nil {
		return RangeExpr{}, &InvalidExpressionError{
			Filter:     filterName,
			Expression: expr,
			Reason:     "expected an optional operator followed by a number",
		}
	}
	op := Operator(m[1])
	if op == "" {
		op = OpEqual
	}
	if !slices.Contains(Operators, op) {
		return RangeExpr{}, &InvalidExpressionError{
			Filter:     filterName,
			Expression: expr,
			Reason:     fmt.Sprintf("unsupported operator %q", m[1]),
		}
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return RangeExpr{}, &InvalidExpressionError{Filter: filterName, Expression: expr, Reason: err.Error()}
	}
	return RangeExpr{Operator: op, Operand: m[2], value: v}, nil
}

// InvalidExpressionError reports a filter value that cannot be parsed.
type InvalidExpressionError struct {
	Filter     string
	Expression string
	Reason     string
}

func (e *InvalidExpressionError) Error() string {
	ops := make([]string, len(Operators))
	for i, op := range Operators {
		ops[i] = string(op)
	}
	return fmt.Sprintf("invalid expression %q for filter %s: %s (valid operators: %s)",
		e.Expression, e.Filter, e.Reason, strings.Join(ops, ", "))
}

// Spec is a validated, immutable constraint on one named field. An empty
// Values slice means the attribute was requested without narrowing it.
type Spec struct {
	Name   string
	Values []string
	Mode   Mode

	ranges   []RangeExpr
	patterns []*regexp.Regexp
}

// New parses values according to mode. Range and regex values are validated
// here so a bad expression fails before any source is contacted.
func New(name string, values []string, mode Mode) (*Spec, error) {
	s := &Spec{Name: name, Values: slices.Clone(values), Mode: mode}
	switch mode {
	case Range:
		for _, v := range values {
			r, err := ParseRange(name, v)
			if err != nil {
				return nil, err
			}
			s.ranges = append(s.ranges, r)
		}
	case Regex:
		for _, v := range values {
			re, err := regexp.Compile(v)
			if err != nil {
				return nil, &InvalidExpressionError{Filter: name, Expression: v, Reason: err.Error()}
			}
			s.patterns = append(s.patterns, re)
		}
	}
	return s, nil
}

// MustNew is New for statically known values; it panics on error.
func MustNew(name string, values []string, mode Mode) *Spec {
	s, err := New(name, values, mode)
	if err != nil {
		panic(err)
	}
	return s
}

// HasValues reports whether s narrows its attribute.
func (s *Spec) HasValues() bool {
	return s != nil && len(s.Values) > 0
}

// Equal compares name and values.
func (s *Spec) Equal(o *Spec) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Name == o.Name && slices.Equal(s.Values, o.Values)
}

// Ranges returns the parsed range expressions of a Range spec.
func (s *Spec) Ranges() []RangeExpr {
	return slices.Clone(s.ranges)
}

// Patterns returns the compiled expressions of a Regex spec.
func (s *Spec) Patterns() []*regexp.Regexp {
	return slices.Clone(s.patterns)
}

// as reinterprets s under another mode.
func (s *Spec) as(mode Mode) (*Spec, error) {
	if s.Mode == mode {
		return s, nil
	}
	return New(s.Name, s.Values, mode)
}

// Args maps argument names to the filters supplied for a query.
type Args map[string]*Spec

// Has reports whether the argument was supplied, with or without values.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Get returns the filter supplied for name.
func (a Args) Get(name string) (*Spec, bool) {
	s, ok := a[name]
	return s, ok
}

// Values returns the values supplied for name, or nil.
func (a Args) Values(name string) []string {
	if s, ok := a[name]; ok {
		return s.Values
	}
	return nil
}

// Names returns the supplied argument names in sorted order.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
