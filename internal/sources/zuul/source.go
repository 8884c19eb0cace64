// Package zuul answers tenant, project, pipeline, job, variant and build
// queries from a Zuul web REST API.
package zuul

import (
	"context"
	"errors"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
	"ciquery/internal/model"
	"ciquery/internal/source"

	"github.com/rs/zerolog/log"
)

const Driver = "zuul"

// DefaultBuildLimit caps how many builds are fetched per job.
const DefaultBuildLimit = 50

var capabilities = source.Capabilities{
	source.GetTenants:   {Base: 3},
	source.GetProjects:  {Base: 3},
	source.GetPipelines: {Base: 3},
	source.GetJobs:      {Base: 3, PerFilter: map[string]int{"jobs": 1}},
	source.GetVariants:  {Base: 2},
	source.GetBuilds:    {Base: 3},
}

var (
	tenantRules   = filter.Rules{{Name: "tenants", Field: "name", Mode: filter.Regex}}
	projectRules  = filter.Rules{{Name: "projects", Field: "name", Mode: filter.Regex}}
	pipelineRules = filter.Rules{{Name: "pipelines", Field: "name", Mode: filter.Regex}}
	jobRules      = filter.Rules{
		{Name: "jobs", Field: "name", Mode: filter.Regex},
		{Name: "job_url", Field: "url", Mode: filter.Regex},
	}
	variantRules = filter.Rules{{Name: "variants", Field: "branch_list", Mode: filter.Regex}}
	buildRules   = filter.Rules{
		{Name: "builds", Field: "uuid", Mode: filter.Exact},
		{Name: "build_status", Field: "result", Mode: filter.CaseInsensitive},
	}
)

// Config configures one Zuul source.
type Config struct {
	Name     string
	Enabled  bool
	Priority int
	// BuildLimit overrides DefaultBuildLimit.
	BuildLimit int
	HTTP       httpapi.Config
}

type Source struct {
	source.Base
	client     *httpapi.Client
	buildLimit int
}

func New(cfg Config) *Source {
	limit := cfg.BuildLimit
	if limit <= 0 {
		limit = DefaultBuildLimit
	}
	s := &Source{client: httpapi.New(cfg.HTTP), buildLimit: limit}
	s.Descriptor = source.Descriptor{
		Name:         cfg.Name,
		Driver:       Driver,
		Enabled:      cfg.Enabled,
		Priority:     cfg.Priority,
		Capabilities: capabilities,
	}
	s.OnSetup = s.ping
	return s
}

func (s *Source) ping(ctx context.Context) error {
	if _, err := fetchTenants(ctx, s.client); err != nil {
		return source.Fail(err)
	}
	log.Debug().Str("source", s.Name()).Str("url", s.client.BaseURL()).Msg("Connected to Zuul")
	return nil
}

func (s *Source) Query(ctx context.Context, c source.Capability, args filter.Args) (*model.Graph, error) {
	w, err := newWalker(s, args)
	if err != nil {
		return nil, err
	}
	switch c {
	case source.GetTenants:
		err = w.tenants(ctx)
	case source.GetProjects:
		err = w.projects(ctx)
	case source.GetPipelines:
		err = w.pipelines(ctx)
	case source.GetJobs:
		_, err = w.jobs(ctx)
	case source.GetVariants:
		err = w.variants(ctx)
	case source.GetBuilds:
		err = w.builds(ctx)
	default:
		return nil, s.Unsupported(c)
	}
	if err != nil {
		var bad *filter.InvalidExpressionError
		if errors.As(err, &bad) {
			return nil, err
		}
		return nil, source.Fail(err)
	}
	return w.graph, nil
}

// walker descends the tenant hierarchy for one query, applying each level's
// filters and recording every surviving entity.
type walker struct {
	src   *Source
	args  filter.Args
	graph *model.Graph

	tenantP, projectP, pipelineP, jobP, variantP, buildP *filter.Pipeline
}

func newWalker(s *Source, args filter.Args) (*walker, error) {
	w := &walker{src: s, args: args, graph: model.NewGraph()}
	for _, c := range []struct {
		rules filter.Rules
		dst   **filter.Pipeline
	}{
		{tenantRules, &w.tenantP},
		{projectRules, &w.projectP},
		{pipelineRules, &w.pipelineP},
		{jobRules, &w.jobP},
		{variantRules, &w.variantP},
		{buildRules, &w.buildP},
	} {
		p, err := c.rules.Compile(args)
		if err != nil {
			return nil, err
		}
		*c.dst = p
	}
	return w, nil
}

func (w *walker) tenantNames(ctx context.Context) ([]string, error) {
	records, err := fetchTenants(ctx, w.src.client)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range w.tenantP.Apply(records) {
		names = append(names, t.Text("name"))
	}
	return names, nil
}

func (w *walker) tenants(ctx context.Context) error {
	names, err := w.tenantNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		w.graph.AddTenant(&model.Tenant{Name: n})
	}
	return nil
}

type projectRef struct {
	tenant string
	rec    filter.Record
}

func (w *walker) matchingProjects(ctx context.Context) ([]projectRef, error) {
	tenants, err := w.tenantNames(ctx)
	if err != nil {
		return nil, err
	}
	var refs []projectRef
	for _, t := range tenants {
		records, err := fetchProjects(ctx, w.src.client, t)
		if err != nil {
			return nil, err
		}
		for _, p := range w.projectP.Apply(records) {
			refs = append(refs, projectRef{tenant: t, rec: p})
		}
	}
	return refs, nil
}

func (w *walker) projects(ctx context.Context) error {
	refs, err := w.matchingProjects(ctx)
	if err != nil {
		return err
	}
	for _, r := range refs {
		w.graph.AddProject(r.tenant, &model.Project{Name: r.rec.Text("name"), URL: r.rec.Text("url")})
	}
	return nil
}

func (w *walker) pipelines(ctx context.Context) error {
	_, err := w.pipelineJobs(ctx)
	return err
}

// pipelineJobs records matching pipelines with the jobs they trigger and
// returns the triggered job names per tenant. With a jobs filter, pipelines
// that trigger no matching job are dropped.
func (w *walker) pipelineJobs(ctx context.Context) (map[string]map[string]bool, error) {
	refs, err := w.matchingProjects(ctx)
	if err != nil {
		return nil, err
	}
	triggered := map[string]map[string]bool{}
	for _, r := range refs {
		project := r.rec.Text("name")
		records, err := fetchPipelines(ctx, w.src.client, r.tenant, project)
		if err != nil {
			return nil, err
		}
		for _, p := range w.pipelineP.Apply(records) {
			jobs := w.filterJobNames(r.tenant, p["jobs"].([]string))
			if w.args.Has("jobs") && len(jobs) == 0 {
				continue
			}
			w.graph.AddProject(r.tenant, &model.Project{Name: project, URL: r.rec.Text("url")})
			w.graph.AddPipeline(r.tenant, project, &model.Pipeline{Name: p.Text("name"), Jobs: jobs})
			if triggered[r.tenant] == nil {
				triggered[r.tenant] = map[string]bool{}
			}
			for _, j := range jobs {
				triggered[r.tenant][j] = true
			}
		}
	}
	return triggered, nil
}

func (w *walker) filterJobNames(tenant string, names []string) []string {
	var kept []string
	for _, n := range names {
		rec := filter.Record{"name": n, "url": jobURL(w.src.client, tenant, n)}
		if _, ok := w.jobP.Keep(rec); ok {
			kept = append(kept, n)
		}
	}
	return kept
}

type jobRef struct {
	tenant, name string
}

// jobs records the matching jobs of each tenant. When projects or pipelines
// are constrained, only jobs those pipelines trigger are kept.
func (w *walker) jobs(ctx context.Context) ([]jobRef, error) {
	var scoped map[string]map[string]bool
	if w.args.Has("projects") || w.args.Has("pipelines") {
		var err error
		if scoped, err = w.pipelineJobs(ctx); err != nil {
			return nil, err
		}
	}
	tenants, err := w.tenantNames(ctx)
	if err != nil {
		return nil, err
	}
	var refs []jobRef
	for _, t := range tenants {
		if scoped != nil && len(scoped[t]) == 0 {
			continue
		}
		records, err := fetchJobs(ctx, w.src.client, t)
		if err != nil {
			return nil, err
		}
		for _, j := range w.jobP.Apply(records) {
			name := j.Text("name")
			if scoped != nil && !scoped[t][name] {
				continue
			}
			w.graph.AddTenantJob(t, &model.Job{Name: name, URL: j.Text("url")})
			refs = append(refs, jobRef{tenant: t, name: name})
		}
	}
	return refs, nil
}

func (w *walker) variants(ctx context.Context) error {
	refs, err := w.jobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range refs {
		records, err := fetchVariants(ctx, w.src.client, j.tenant, j.name)
		if err != nil {
			return err
		}
		for _, v := range w.variantP.Apply(records) {
			branches, _ := v["branch_list"].([]string)
			vars, _ := v["vars"].(map[string]any)
			w.graph.AddVariant(j.tenant, j.name, &model.Variant{
				Description: v.Text("description"),
				Parent:      v.Text("parent"),
				Branches:    branches,
				NodeSet:     v.Text("nodeset"),
				Vars:        vars,
				Source:      v.Text("source"),
			})
		}
	}
	return nil
}

func (w *walker) builds(ctx context.Context) error {
	refs, err := w.jobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range refs {
		records, err := fetchBuilds(ctx, w.src.client, j.tenant, j.name, w.src.buildLimit)
		if err != nil {
			return err
		}
		builds := w.buildP.Apply(records)
		if w.args.Has("last_build") && len(builds) > 1 {
			builds = builds[:1]
		}
		for _, b := range builds {
			duration, _ := b["duration"].(int)
			w.graph.AddBuild(j.tenant, &model.Build{
				ID:       b.Text("uuid"),
				Job:      j.name,
				Project:  b.Text("project"),
				Pipeline: b.Text("pipeline"),
				Result:   b.Text("result"),
				Duration: duration,
			})
		}
	}
	return nil
}
