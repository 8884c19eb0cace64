package query

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ciquery/internal/config"
	"ciquery/internal/filter"
	"ciquery/internal/model"
	"ciquery/internal/source"

	"github.com/google/go-cmp/cmp"
)

type stubSource struct {
	source.Base
	mu     sync.Mutex
	calls  []source.Capability
	answer func(source.Capability, filter.Args) (*model.Graph, error)
}

func newStub(name string, caps source.Capabilities, answer func(source.Capability, filter.Args) (*model.Graph, error)) *stubSource {
	s := &stubSource{answer: answer}
	s.Descriptor = source.Descriptor{Name: name, Driver: "stub", Enabled: true, Capabilities: caps}
	return s
}

func (s *stubSource) Query(_ context.Context, c source.Capability, args filter.Args) (*model.Graph, error) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
	return s.answer(c, args)
}

func jobs(names ...string) *model.Graph {
	g := model.NewGraph()
	for _, n := range names {
		g.AddJob(&model.Job{Name: n})
	}
	return g
}

func mustArgs(t *testing.T, raw map[string][]string) filter.Args {
	t.Helper()
	args, err := ParseArgs(raw)
	if err != nil {
		t.Fatal(err)
	}
	return args
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{Environments: []config.Environment{
		{Name: "prod", Systems: []config.System{
			{Name: "jenkins", Type: "jenkins"},
			{Name: "zuul", Type: "zuul"},
		}},
		{Name: "staging", Systems: []config.System{{Name: "jenkins", Type: "jenkins"}}},
	}}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		systemType string
		raw        map[string][]string
		want       []source.Capability
	}{
		{"no args jenkins", "jenkins", nil, []source.Capability{source.GetJobs}},
		{"no args zuul", "zuul", nil, []source.Capability{source.GetTenants}},
		{"jobs only", "jenkins", map[string][]string{"jobs": {"x"}}, []source.Capability{source.GetJobs}},
		{"deepest wins", "jenkins", map[string][]string{"jobs": nil, "builds": nil, "tests": nil}, []source.Capability{source.GetTests}},
		{"deployment beside builds", "jenkins", map[string][]string{"build_status": {"failure"}, "release": {"17.1"}}, []source.Capability{source.GetBuilds, source.GetDeployment}},
		{"zuul branches", "zuul", map[string][]string{"tenants": nil, "variants": nil, "builds": nil}, []source.Capability{source.GetVariants, source.GetBuilds}},
		{"zuul pipelines", "zuul", map[string][]string{"projects": nil, "pipelines": nil}, []source.Capability{source.GetPipelines}},
		{"unknown type", "gitlab", map[string][]string{"jobs": nil}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.systemType, mustArgs(t, tt.raw))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(map[string][]string{
		"test_duration": {">10", " <=60 "},
		"jobs":          {"", "^periodic"},
		"last_build":    nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := args.Values("jobs"); len(got) != 1 || got[0] != "^periodic" {
		t.Errorf("jobs = %v", got)
	}
	if spec, _ := args.Get("test_duration"); len(spec.Ranges()) != 2 {
		t.Errorf("ranges = %v", spec.Ranges())
	}
	if !args.Has("last_build") || args["last_build"].HasValues() {
		t.Error("bare last_build not kept as a valueless spec")
	}

	var bad *filter.InvalidExpressionError
	if _, err := ParseArgs(map[string][]string{"controllers": {"~3"}}); !errors.As(err, &bad) {
		t.Errorf("err = %v, want *filter.InvalidExpressionError", err)
	}
	if _, err := ParseArgs(map[string][]string{"colour": {"red"}}); err == nil {
		t.Error("unknown filter accepted")
	}
}

func TestRun_ResolvesEverySystemInOrder(t *testing.T) {
	e := NewExecutor(testConfig())
	e.newRegistry = func(env string, sys config.System) (*source.Registry, error) {
		caps := source.Capabilities{source.GetJobs: {Base: 1}, source.GetTenants: {Base: 1}}
		src := newStub("api", caps, func(source.Capability, filter.Args) (*model.Graph, error) {
			return jobs(env + "-" + sys.Name), nil
		})
		return source.NewRegistry(env+"."+sys.Name, src), nil
	}

	rep, err := e.Run(context.Background(), Options{Parallel: 3})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, env := range rep.Environments {
		for _, sys := range env.Systems {
			got = append(got, env.Name+"/"+sys.Name)
			if !sys.Found() {
				t.Errorf("%s/%s found nothing", env.Name, sys.Name)
			}
		}
	}
	if diff := cmp.Diff([]string{"prod/jenkins", "prod/zuul", "staging/jenkins"}, got); diff != "" {
		t.Errorf("report order (-want +got):\n%s", diff)
	}
	if _, ok := rep.Environments[1].Systems[0].Graph.Job("", "staging-jenkins"); !ok {
		t.Error("staging graph missing its job")
	}
}

func TestRun_SelectionAndMergePolicy(t *testing.T) {
	var primary, secondary *stubSource
	e := NewExecutor(testConfig())
	e.newRegistry = func(env string, sys config.System) (*source.Registry, error) {
		primary = newStub("primary", source.Capabilities{source.GetJobs: {Base: 2}}, func(source.Capability, filter.Args) (*model.Graph, error) {
			return jobs("a"), nil
		})
		secondary = newStub("secondary", source.Capabilities{source.GetJobs: {Base: 1}}, func(source.Capability, filter.Args) (*model.Graph, error) {
			return jobs("b"), nil
		})
		return source.NewRegistry(env+"."+sys.Name, primary, secondary), nil
	}

	rep, err := e.Run(context.Background(), Options{Environments: []string{"staging"}, MergeSources: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Environments) != 1 || rep.Environments[0].Name != "staging" {
		t.Fatalf("environments = %+v", rep.Environments)
	}
	sys := rep.Environments[0].Systems[0]
	if diff := cmp.Diff([]string{"a", "b"}, model.SortedKeys(sys.Graph.Jobs)); diff != "" {
		t.Errorf("merged jobs (-want +got):\n%s", diff)
	}
	if !primary.IsDown() || !secondary.IsDown() {
		t.Error("sources not torn down after the run")
	}

	rep, err = e.Run(context.Background(), Options{Environments: []string{"staging"}})
	if err != nil {
		t.Fatal(err)
	}
	if n := rep.Environments[0].Systems[0].Graph.JobCount(); n != 1 {
		t.Errorf("first-success JobCount = %d, want 1", n)
	}
	if len(secondary.calls) != 0 {
		t.Error("secondary queried under first-success policy")
	}
}

func TestRun_UnsupportedCapabilityIsMarked(t *testing.T) {
	e := NewExecutor(testConfig())
	e.newRegistry = func(env string, sys config.System) (*source.Registry, error) {
		src := newStub("jobs-only", source.Capabilities{source.GetJobs: {Base: 1}}, func(source.Capability, filter.Args) (*model.Graph, error) {
			return jobs("a"), nil
		})
		return source.NewRegistry(env+"."+sys.Name, src), nil
	}

	rep, err := e.Run(context.Background(), Options{
		Environments: []string{"prod"},
		Systems:      []string{"jenkins"},
		Args:         mustArgs(t, map[string][]string{"tests": {"tempest"}}),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []CapabilityOutcome{{Capability: source.GetTests, Unsupported: true}}
	if diff := cmp.Diff(want, rep.Environments[0].Systems[0].Results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ConfigurationErrorAborts(t *testing.T) {
	e := NewExecutor(testConfig())
	e.newRegistry = func(env string, sys config.System) (*source.Registry, error) {
		return source.NewRegistry(env + "." + sys.Name), nil
	}
	_, err := e.Run(context.Background(), Options{Parallel: 2})
	var cfgErr *source.NoValidSourcesError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want *source.NoValidSourcesError", err)
	}
}

func TestRun_NoMatchingSystem(t *testing.T) {
	e := NewExecutor(testConfig())
	if _, err := e.Run(context.Background(), Options{Systems: []string{"gitlab"}}); !errors.Is(err, ErrNoSystems) {
		t.Errorf("err = %v, want ErrNoSystems", err)
	}
}
