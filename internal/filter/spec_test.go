package filter

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		expr    string
		wantOp  Operator
		wantArg string
	}{
		{"<=2", OpLessEqual, "2"},
		{"2", OpEqual, "2"},
		{">= 10", OpGreaterEqual, "10"},
		{"!=0", OpNotEqual, "0"},
		{"<3", OpLess, "3"},
		{">1.5", OpGreater, "1.5"},
		{"==-1", OpEqual, "-1"},
	}

	for _, tt := range tests {
		got, err := ParseRange("controllers", tt.expr)
		if err != nil {
			t.Fatalf("ParseRange(%q) returned error: %v", tt.expr, err)
		}
		if got.Operator != tt.wantOp || got.Operand != tt.wantArg {
			t.Errorf("ParseRange(%q) = (%q, %q), want (%q, %q)", tt.expr, got.Operator, got.Operand, tt.wantOp, tt.wantArg)
		}
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, expr := range []string{"?2", "=2", "<>3", "abc", ""} {
		_, err := ParseRange("controllers", expr)
		if err == nil {
			t.Errorf("ParseRange(%q) expected error, got nil", expr)
			continue
		}
		var invalid *InvalidExpressionError
		if !errors.As(err, &invalid) {
			t.Errorf("ParseRange(%q) error type = %T, want *InvalidExpressionError", expr, err)
			continue
		}
		if invalid.Expression != expr {
			t.Errorf("error expression = %q, want %q", invalid.Expression, expr)
		}
		for _, op := range Operators {
			if !strings.Contains(err.Error(), string(op)) {
				t.Errorf("error %q does not list operator %q", err.Error(), op)
			}
		}
	}
}

func TestRangeExpr_Eval(t *testing.T) {
	tests := []struct {
		expr string
		n    float64
		want bool
	}{
		{"<=2", 2, true},
		{"<=2", 3, false},
		{"2", 2, true},
		{"!=2", 2, false},
		{">2", 3, true},
		{">=3", 2, false},
		{"<1", 0, true},
	}

	for _, tt := range tests {
		r, err := ParseRange("n", tt.expr)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.Eval(tt.n); got != tt.want {
			t.Errorf("%s.Eval(%v) = %v, want %v", tt.expr, tt.n, got, tt.want)
		}
	}
}

func TestNew_RangeFailsOnBadValue(t *testing.T) {
	_, err := New("computes", []string{">1", "?2"}, Range)
	if err == nil {
		t.Fatal("expected error for unsupported operator")
	}
	if !strings.Contains(err.Error(), `"?2"`) {
		t.Errorf("error %q does not name the bad expression", err)
	}
}

func TestNew_RegexFailsOnBadPattern(t *testing.T) {
	_, err := New("jobs", []string{"(unclosed"}, Regex)
	var invalid *InvalidExpressionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidExpressionError, got %v", err)
	}
	if invalid.Filter != "jobs" {
		t.Errorf("Filter = %q, want jobs", invalid.Filter)
	}
}

func TestSpec_HasValuesAndEqual(t *testing.T) {
	empty := MustNew("jobs", nil, Regex)
	if empty.HasValues() {
		t.Error("spec without values reports HasValues")
	}
	var missing *Spec
	if missing.HasValues() {
		t.Error("nil spec reports HasValues")
	}

	a := MustNew("release", []string{"17.1"}, Exact)
	b := MustNew("release", []string{"17.1"}, CaseInsensitive)
	c := MustNew("release", []string{"16.2"}, Exact)
	if !a.HasValues() {
		t.Error("spec with values reports !HasValues")
	}
	if !a.Equal(b) {
		t.Error("specs with same name and values should be equal regardless of mode")
	}
	if a.Equal(c) {
		t.Error("specs with different values should not be equal")
	}
}

func TestSpec_ImmutableValues(t *testing.T) {
	values := []string{"a"}
	s := MustNew("x", values, Exact)
	values[0] = "b"
	if s.Values[0] != "a" {
		t.Errorf("spec values changed with caller slice: %v", s.Values)
	}
}

func TestArgs_Names(t *testing.T) {
	args := Args{
		"jobs":   MustNew("jobs", nil, Regex),
		"builds": MustNew("builds", []string{"3"}, Exact),
	}
	names := args.Names()
	if len(names) != 2 || names[0] != "builds" || names[1] != "jobs" {
		t.Errorf("Names() = %v, want [builds jobs]", names)
	}
	if !args.Has("jobs") || args.Has("tests") {
		t.Error("Has reported wrong membership")
	}
	if got := args.Values("builds"); len(got) != 1 || got[0] != "3" {
		t.Errorf("Values(builds) = %v", got)
	}
}
