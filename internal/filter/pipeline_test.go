package filter

import (
	"errors"
	"slices"
	"testing"
)

func TestRegexMatch_OrAcrossPatterns(t *testing.T) {
	spec := MustNew("jobs", []string{"^foo", "bar$"}, Regex)
	pred := RegexMatch("name", spec.Patterns())

	tests := []struct {
		name string
		want bool
	}{
		{"foobaz", true},
		{"bazbar", true},
		{"qux", false},
	}
	for _, tt := range tests {
		if _, got := pred(Record{"name": tt.name}); got != tt.want {
			t.Errorf("regex keep(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRegexMatch_ListFieldMatchesPerElement(t *testing.T) {
	spec := MustNew("variants", []string{"^stable/zed$"}, Regex)
	pred := RegexMatch("branch_list", spec.Patterns())

	tests := []struct {
		branches any
		want     bool
	}{
		{[]string{"stable/wallaby", "stable/zed"}, true},
		{[]any{"stable/zed"}, true},
		{[]string{"stable/zed-eol"}, false},
		{[]string{"master"}, false},
		{[]string(nil), false},
	}
	for _, tt := range tests {
		if _, got := pred(Record{"branch_list": tt.branches}); got != tt.want {
			t.Errorf("regex keep(%v) = %v, want %v", tt.branches, got, tt.want)
		}
	}
}

func TestExactMatch_EmptyKeepsAll(t *testing.T) {
	pred := ExactMatch("number", nil)
	if _, ok := pred(Record{"number": 7}); !ok {
		t.Error("empty exact filter dropped a record")
	}

	pred = ExactMatch("number", []string{"7", "8"})
	if _, ok := pred(Record{"number": 7}); !ok {
		t.Error("exact filter dropped matching numeric field")
	}
	if _, ok := pred(Record{"number": 9}); ok {
		t.Error("exact filter kept non-matching record")
	}
}

func TestCaseInsensitiveMatch_Default(t *testing.T) {
	pred := CaseInsensitiveMatch("dvr", nil, []string{"True"})
	if _, ok := pred(Record{"dvr": "true"}); !ok {
		t.Error("default value not applied")
	}
	if _, ok := pred(Record{"dvr": "False"}); ok {
		t.Error("default value should drop False")
	}

	pred = CaseInsensitiveMatch("result", []string{"failure"}, nil)
	if _, ok := pred(Record{"result": "FAILURE"}); !ok {
		t.Error("comparison should ignore case")
	}
}

func TestSetMatch_Narrows(t *testing.T) {
	pred := SetMatch("templates", []string{"c", "d"})

	in := Record{"templates": []string{"a", "b", "c", "d"}}
	out, ok := pred(in)
	if !ok {
		t.Fatal("record with intersecting set dropped")
	}
	if got := out["templates"].([]string); !slices.Equal(got, []string{"c", "d"}) {
		t.Errorf("narrowed set = %v, want [c d]", got)
	}
	if got := in["templates"].([]string); len(got) != 4 {
		t.Errorf("input record was mutated: %v", got)
	}

	out, ok = pred(Record{"templates": []string{"x"}})
	if ok {
		t.Error("record with disjoint set kept")
	}
	if got := out["templates"].([]string); len(got) != 0 {
		t.Errorf("narrowed set = %v, want empty", got)
	}
}

func TestTopologyCount(t *testing.T) {
	rec := Record{"topology": "compute:2,controller:3"}
	tests := []struct {
		component string
		want      float64
	}{
		{"controller", 3},
		{"compute", 2},
		{"ceph", 0},
	}
	for _, tt := range tests {
		got, ok := TopologyCount("topology", tt.component)(rec)
		if !ok || got != tt.want {
			t.Errorf("TopologyCount(%s) = %v, %v, want %v", tt.component, got, ok, tt.want)
		}
	}
	if _, ok := TopologyCount("topology", "compute")(Record{}); ok {
		t.Error("missing topology should not produce a count")
	}
}

func TestRules_Compile(t *testing.T) {
	rules := Rules{
		{Name: "jobs", Field: "name", Mode: Regex},
		{Name: "controllers", Mode: Range, Count: TopologyCount("topology", "controller")},
		{Name: "computes", Mode: Range, Count: TopologyCount("topology", "compute")},
		{Name: "dvr", Field: "dvr", Mode: CaseInsensitive, Default: []string{"True"}},
	}

	// Supplied in a different order than registered, and with the wrong mode
	// for controllers; Compile follows the rules.
	args := Args{
		"dvr":         MustNew("dvr", nil, Exact),
		"controllers": MustNew("controllers", []string{">=3"}, Exact),
		"computes":    MustNew("computes", []string{"<3"}, Range),
		"unrelated":   MustNew("unrelated", []string{"x"}, Exact),
	}
	p, err := rules.Compile(args)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := p.Names(); !slices.Equal(got, []string{"controllers", "computes", "dvr"}) {
		t.Errorf("pipeline order = %v", got)
	}

	records := []Record{
		{"name": "a", "topology": "compute:2,controller:3", "dvr": "True"},
		{"name": "b", "topology": "compute:3,controller:3", "dvr": "True"},
		{"name": "c", "topology": "compute:1,controller:1", "dvr": "True"},
		{"name": "d", "topology": "compute:1,controller:3", "dvr": "False"},
	}
	kept := p.Apply(records)
	if len(kept) != 1 || kept[0].Text("name") != "a" {
		t.Errorf("kept = %v, want only a", kept)
	}
}

func TestRules_CompileInvalid(t *testing.T) {
	rules := Rules{{Name: "controllers", Mode: Range, Count: TopologyCount("topology", "controller")}}
	_, err := rules.Compile(Args{"controllers": MustNew("controllers", []string{"~3"}, Exact)})
	var invalid *InvalidExpressionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidExpressionError, got %v", err)
	}
}

func TestPipeline_NarrowedRecordFlowsToNextStep(t *testing.T) {
	rules := Rules{
		{Name: "nodes", Field: "nodes", Mode: SetMembership},
		{Name: "node_count", Mode: Range, Count: func(r Record) (float64, bool) {
			return float64(len(r["nodes"].([]string))), true
		}},
	}
	p, err := rules.Compile(Args{
		"nodes":      MustNew("nodes", []string{"controller-0", "compute-0"}, SetMembership),
		"node_count": MustNew("node_count", []string{"2"}, Range),
	})
	if err != nil {
		t.Fatal(err)
	}
	out, ok := p.Keep(Record{"nodes": []string{"controller-0", "controller-1", "compute-0"}})
	if !ok {
		t.Fatal("record dropped")
	}
	if got := out["nodes"].([]string); !slices.Equal(got, []string{"controller-0", "compute-0"}) {
		t.Errorf("nodes = %v", got)
	}
}

func TestDerive(t *testing.T) {
	notFound := Method{Name: "artifact", Fn: func() (string, error) { return "", ErrNotFound }}
	empty := Method{Name: "empty", Fn: func() (string, error) { return "", nil }}
	byName := Method{Name: "job-name", Fn: func() (string, error) { return "compute:2,controller:3", nil }}

	got, err := Derive(true, notFound, empty, byName)
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "compute:2,controller:3" || got.Method != "job-name" {
		t.Errorf("Derive = %+v", got)
	}

	got, err = Derive(true, notFound, empty)
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != NotAvailable || got.Method != "" {
		t.Errorf("exhausted requested Derive = %+v, want N/A", got)
	}

	got, _ = Derive(false, notFound)
	if got.Value != "" {
		t.Errorf("exhausted unrequested Derive = %+v, want empty", got)
	}

	boom := errors.New("boom")
	_, err = Derive(true, Method{Name: "bad", Fn: func() (string, error) { return "", boom }}, byName)
	if !errors.Is(err, boom) {
		t.Errorf("unexpected error %v, want boom", err)
	}
}
