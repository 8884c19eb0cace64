package filter

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Record is one raw item returned by a backend before it is turned into an
// entity.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text returns the field as a string; missing fields are "".
func (r Record) Text(field string) string {
	return stringify(r[field])
}

// Predicate tests a record. Predicates never mutate their input: a narrowing
// predicate returns a copy carrying the narrowed field.
type Predicate func(Record) (Record, bool)

// Counter extracts the number a Range predicate compares.
type Counter func(Record) (float64, bool)

// Rule binds a filter name to the record field it constrains.
type Rule struct {
	Name  string
	Field string
	Mode  Mode
	// Default replaces an empty value list (CaseInsensitive only).
	Default []string
	// Count overrides how a Range rule obtains its number; the default reads
	// Field as a number.
	Count Counter
}

// Rules is an ordered rule set. Registration order is execution order.
type Rules []Rule

// Compile builds the pipeline for the filters present in args.
func (rs Rules) Compile(args Args) (*Pipeline, error) {
	p := &Pipeline{}
	for _, rule := range rs {
		spec, ok := args[rule.Name]
		if !ok || spec == nil {
			continue
		}
		spec, err := spec.as(rule.Mode)
		if err != nil {
			return nil, err
		}
		pred, err := rule.predicate(spec)
		if err != nil {
			return nil, err
		}
		p.steps = append(p.steps, step{name: rule.Name, pred: pred})
	}
	return p, nil
}

func (r Rule) predicate(spec *Spec) (Predicate, error) {
	switch r.Mode {
	case Exact:
		return ExactMatch(r.Field, spec.Values), nil
	case CaseInsensitive:
		return CaseInsensitiveMatch(r.Field, spec.Values, r.Default), nil
	case Regex:
		return RegexMatch(r.Field, spec.patterns), nil
	case Range:
		count := r.Count
		if count == nil {
			count = FieldCount(r.Field)
		}
		return RangeMatch(count, spec.ranges), nil
	case SetMembership:
		return SetMatch(r.Field, spec.Values), nil
	}
	return nil, fmt.Errorf("filter %s: unsupported mode %s", r.Name, r.Mode)
}

type step struct {
	name string
	pred Predicate
}

// Pipeline is an AND over compiled predicates.
type Pipeline struct {
	steps []step
}

// Len returns the number of active predicates.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Names returns the active filter names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}

// Keep runs every predicate in order and returns the (possibly narrowed)
// record and whether it survived.
func (p *Pipeline) Keep(r Record) (Record, bool) {
	for _, s := range p.steps {
		var ok bool
		r, ok = s.pred(r)
		if !ok {
			return r, false
		}
	}
	return r, true
}

// Apply returns the records that survive the pipeline.
func (p *Pipeline) Apply(records []Record) []Record {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if out, ok := p.Keep(r); ok {
			kept = append(kept, out)
		}
	}
	return kept
}

// ExactMatch keeps records whose field equals one of values. No values keeps
// everything.
func ExactMatch(field string, values []string) Predicate {
	return func(r Record) (Record, bool) {
		if len(values) == 0 {
			return r, true
		}
		return r, slices.Contains(values, r.Text(field))
	}
}

// CaseInsensitiveMatch is ExactMatch ignoring case. When no values were given,
// defaults are used instead.
func CaseInsensitiveMatch(field string, values, defaults []string) Predicate {
	if len(values) == 0 {
		values = defaults
	}
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	return func(r Record) (Record, bool) {
		if len(lowered) == 0 {
			return r, true
		}
		return r, slices.Contains(lowered, strings.ToLower(r.Text(field)))
	}
}

// RegexMatch keeps records whose field matches any of patterns. A list field
// matches when any of its elements does.
func RegexMatch(field string, patterns []*regexp.Regexp) Predicate {
	return func(r Record) (Record, bool) {
		if len(patterns) == 0 {
			return r, true
		}
		values := []string{r.Text(field)}
		switch r[field].(type) {
		case []string, []any:
			if set := stringSet(r[field]); len(set) > 0 {
				values = set
			}
		}
		for _, re := range patterns {
			for _, v := range values {
				if re.MatchString(v) {
					return r, true
				}
			}
		}
		return r, false
	}
}

// RangeMatch keeps records whose count satisfies every expression. Records
// without a count are dropped once any expression is given.
func RangeMatch(count Counter, exprs []RangeExpr) Predicate {
	return func(r Record) (Record, bool) {
		if len(exprs) == 0 {
			return r, true
		}
		n, ok := count(r)
		if !ok {
			return r, false
		}
		for _, e := range exprs {
			if !e.Eval(n) {
				return r, false
			}
		}
		return r, true
	}
}

// SetMatch intersects the record's set-typed field with values. The returned
// copy carries the intersection; the record is kept iff it is non-empty.
func SetMatch(field string, values []string) Predicate {
	return func(r Record) (Record, bool) {
		if len(values) == 0 {
			return r, true
		}
		var narrowed []string
		for _, v := range stringSet(r[field]) {
			if slices.Contains(values, v) {
				narrowed = append(narrowed, v)
			}
		}
		if narrowed == nil {
			narrowed = []string{}
		}
		out := r.Clone()
		out[field] = narrowed
		return out, len(narrowed) > 0
	}
}

// FieldCount reads a numeric field.
func FieldCount(field string) Counter {
	return func(r Record) (float64, bool) {
		return number(r[field])
	}
}

// TopologyCount counts component in a topology field of the form
// "compute:2,controller:3".
func TopologyCount(field, component string) Counter {
	return func(r Record) (float64, bool) {
		topology := r.Text(field)
		if topology == "" || topology == NotAvailable {
			return 0, false
		}
		for _, part := range strings.Split(topology, ",") {
			name, n, ok := strings.Cut(strings.TrimSpace(part), ":")
			if !ok || name != component {
				continue
			}
			v, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
		return 0, true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func stringSet(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out
	case map[string]struct{}:
		out := make([]string, 0, len(t))
		for k := range t {
			out = append(out, k)
		}
		slices.Sort(out)
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}
