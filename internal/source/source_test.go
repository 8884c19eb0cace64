package source

import (
	"context"
	"errors"
	"testing"

	"ciquery/internal/filter"
	"ciquery/internal/model"
)

// fakeSource answers queries through function fields, keyed by capability.
type fakeSource struct {
	Base
	query      func(c Capability, args filter.Args) (*model.Graph, error)
	setupCalls int
	queryCalls map[Capability]int
}

func newFake(name string, priority int, caps Capabilities) *fakeSource {
	f := &fakeSource{queryCalls: make(map[Capability]int)}
	f.Base = Base{Descriptor: Descriptor{
		Name:         name,
		Driver:       "fake",
		Enabled:      true,
		Priority:     priority,
		Capabilities: caps,
	}}
	f.OnSetup = func(context.Context) error {
		f.setupCalls++
		return nil
	}
	return f
}

func (f *fakeSource) Query(_ context.Context, c Capability, args filter.Args) (*model.Graph, error) {
	f.queryCalls[c]++
	if f.query == nil {
		return nil, f.Unsupported(c)
	}
	return f.query(c, args)
}

func jobGraph(names ...string) *model.Graph {
	g := model.NewGraph()
	for _, n := range names {
		g.AddJob(&model.Job{Name: n})
	}
	return g
}

func names(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name()
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistry_Capable(t *testing.T) {
	a := newFake("a", 0, Capabilities{GetJobs: {Base: 1}})
	b := newFake("b", 0, Capabilities{GetBuilds: {Base: 1}})
	c := newFake("c", 0, Capabilities{GetJobs: {Base: 1}})
	c.Descriptor.Enabled = false
	d := newFake("d", 0, Capabilities{GetJobs: {Base: 1}, GetBuilds: {Base: 1}})

	r := NewRegistry("ci_jenkins", a, b, c, d)
	got, err := r.Capable(GetJobs)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "d"}; !equalNames(names(got), want) {
		t.Errorf("Capable(get_jobs) = %v, want %v", names(got), want)
	}
}

func TestRegistry_NoSupportedSources(t *testing.T) {
	r := NewRegistry("ci_jenkins", newFake("a", 0, Capabilities{GetJobs: {Base: 1}}))
	_, err := r.Capable(GetTenants)

	var unsupported *NoSupportedSourcesError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *NoSupportedSourcesError, got %v", err)
	}
	if unsupported.Scope != "ci_jenkins" || unsupported.Capability != GetTenants {
		t.Errorf("error = %+v", unsupported)
	}
}

func TestRegistry_NoValidSources(t *testing.T) {
	_, err := NewRegistry("ci_zuul").Capable(GetJobs)
	var invalid *NoValidSourcesError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *NoValidSourcesError, got %v", err)
	}
	if invalid.Scope != "ci_zuul" {
		t.Errorf("Scope = %q", invalid.Scope)
	}

	off := newFake("off", 0, Capabilities{GetJobs: {Base: 1}})
	off.Descriptor.Enabled = false
	_, err = NewRegistry("ci_zuul", off).Capable(GetJobs)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *NoValidSourcesError for all-disabled pool, got %v", err)
	}
	if !equalNames(invalid.Sources, []string{"off"}) {
		t.Errorf("Sources = %v, want [off]", invalid.Sources)
	}
}

func TestRank(t *testing.T) {
	a := newFake("a", 0, Capabilities{GetBuilds: {Base: 1, PerFilter: map[string]int{"build_status": 3}}})
	b := newFake("b", 0, Capabilities{GetBuilds: {Base: 3}})
	c := newFake("c", 5, Capabilities{GetBuilds: {Base: 1}})
	d := newFake("d", 0, Capabilities{GetBuilds: {Base: 1}})
	e := newFake("e", 0, Capabilities{GetBuilds: {Base: 1}})
	candidates := []Source{a, b, c, d, e}

	tests := []struct {
		filters []string
		want    []string
	}{
		{nil, []string{"b", "c", "a", "d", "e"}},
		{[]string{"build_status"}, []string{"a", "b", "c", "d", "e"}},
		{[]string{"jobs"}, []string{"b", "c", "a", "d", "e"}},
	}
	for _, tt := range tests {
		got := names(Rank(candidates, GetBuilds, tt.filters))
		if !equalNames(got, tt.want) {
			t.Errorf("Rank(%v) = %v, want %v", tt.filters, got, tt.want)
		}
		// Repeatable and does not reorder the input.
		again := names(Rank(candidates, GetBuilds, tt.filters))
		if !equalNames(got, again) {
			t.Errorf("Rank(%v) not deterministic: %v vs %v", tt.filters, got, again)
		}
	}
	if got := names(candidates); !equalNames(got, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("Rank modified its input: %v", got)
	}
}

func TestRank_PositiveDeltaNeverLowersPosition(t *testing.T) {
	s := newFake("s", 0, Capabilities{GetJobs: {Base: 1, PerFilter: map[string]int{"jobs": 2}}})
	o1 := newFake("o1", 0, Capabilities{GetJobs: {Base: 2}})
	o2 := newFake("o2", 1, Capabilities{GetJobs: {Base: 2, PerFilter: map[string]int{"release": 4}}})
	candidates := []Source{o1, o2, s}

	position := func(filters []string) int {
		for i, src := range Rank(candidates, GetJobs, filters) {
			if src.Name() == "s" {
				return i
			}
		}
		return -1
	}
	base := []string{"release"}
	with := []string{"jobs", "release"}
	if position(with) > position(base) {
		t.Errorf("adding a positive filter moved s from %d to %d", position(base), position(with))
	}
}

func TestCallStore(t *testing.T) {
	s := NewCallStore()
	if s.HasBeenCalled("jenkins", GetBuilds) {
		t.Error("empty store reports a call")
	}
	if _, err := s.Status("jenkins", GetBuilds); !errors.Is(err, ErrCallNotRecorded) {
		t.Errorf("Status on unknown key = %v, want ErrCallNotRecorded", err)
	}

	s.Record("jenkins", GetBuilds, true)
	if !s.HasBeenCalled("jenkins", GetBuilds) {
		t.Error("HasBeenCalled false after Record")
	}
	if ok, err := s.Status("jenkins", GetBuilds); err != nil || !ok {
		t.Errorf("Status = %v, %v, want true", ok, err)
	}

	s.Record("jenkins", GetBuilds, false)
	if ok, _ := s.Status("jenkins", GetBuilds); ok {
		t.Error("Record did not overwrite to false")
	}
	if s.HasBeenCalled("jenkins", GetJobs) {
		t.Error("keys leak across capabilities")
	}
}

func TestBase_SetupTeardownIdempotent(t *testing.T) {
	f := newFake("a", 0, nil)
	teardowns := 0
	f.OnTeardown = func(context.Context) error {
		teardowns++
		return nil
	}
	ctx := context.Background()

	if err := f.Teardown(ctx); err != nil || teardowns != 0 {
		t.Errorf("teardown before setup ran the hook")
	}
	for i := 0; i < 3; i++ {
		if err := f.Setup(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if f.setupCalls != 1 || !f.IsSetup() {
		t.Errorf("setup calls = %d, IsSetup = %v", f.setupCalls, f.IsSetup())
	}
	_ = f.Teardown(ctx)
	_ = f.Teardown(ctx)
	if teardowns != 1 || !f.IsDown() {
		t.Errorf("teardowns = %d, IsDown = %v", teardowns, f.IsDown())
	}
}

func TestQueryError_Message(t *testing.T) {
	err := Fail(errors.New("HTTP 503"))
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatal("Fail did not produce a *QueryError")
	}
	qe.Source, qe.Capability = "jenkins", GetJobs
	if got, want := err.Error(), "source query failed [jenkins get_jobs]: HTTP 503"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if Fail(err) != err {
		t.Error("Fail re-wrapped an existing QueryError")
	}
	if Fail(nil) != nil {
		t.Error("Fail(nil) != nil")
	}
}
