package model

// Graph is the assembled result of a query for one system. Zuul-style
// systems populate Tenants; Jenkins-style systems populate Jobs directly.
//
// A Graph is not safe for concurrent use.
type Graph struct {
	Tenants map[string]*Tenant `json:"tenants,omitempty"`
	Jobs    map[string]*Job    `json:"jobs,omitempty"`
}

func NewGraph() *Graph {
	return &Graph{
		Tenants: make(map[string]*Tenant),
		Jobs:    make(map[string]*Job),
	}
}

// Empty reports whether the graph holds no entities.
func (g *Graph) Empty() bool {
	return g == nil || (len(g.Tenants) == 0 && len(g.Jobs) == 0)
}

// Merge folds another graph into g.
func (g *Graph) Merge(o *Graph) {
	if o == nil {
		return
	}
	g.Tenants = mergeChildren(g.Tenants, o.Tenants)
	g.Jobs = mergeChildren(g.Jobs, o.Jobs)
}

func (g *Graph) Clone() *Graph {
	return &Graph{Tenants: cloneChildren(g.Tenants), Jobs: cloneChildren(g.Jobs)}
}

// AddTenant merges t into the graph and returns the stored tenant.
func (g *Graph) AddTenant(t *Tenant) *Tenant {
	if g.Tenants == nil {
		g.Tenants = make(map[string]*Tenant)
	}
	if cur, ok := g.Tenants[t.Name]; ok {
		cur.Merge(t)
		return cur
	}
	stored := t.Clone()
	g.Tenants[t.Name] = stored
	return stored
}

// AddProject upserts the tenant, then merges p under it.
func (g *Graph) AddProject(tenant string, p *Project) *Project {
	t := g.AddTenant(&Tenant{Name: tenant})
	t.Projects = mergeChildren(t.Projects, map[string]*Project{p.Name: p})
	return t.Projects[p.Name]
}

// AddPipeline upserts the tenant and project, then merges p under the project.
func (g *Graph) AddPipeline(tenant, project string, p *Pipeline) *Pipeline {
	proj := g.AddProject(tenant, &Project{Name: project})
	proj.Pipelines = mergeChildren(proj.Pipelines, map[string]*Pipeline{p.Name: p})
	return proj.Pipelines[p.Name]
}

// AddTenantJob upserts the tenant, then merges j under it.
func (g *Graph) AddTenantJob(tenant string, j *Job) *Job {
	t := g.AddTenant(&Tenant{Name: tenant})
	t.Jobs = mergeChildren(t.Jobs, map[string]*Job{j.Name: j})
	return t.Jobs[j.Name]
}

// AddJob merges a top-level job.
func (g *Graph) AddJob(j *Job) *Job {
	g.Jobs = mergeChildren(g.Jobs, map[string]*Job{j.Name: j})
	return g.Jobs[j.Name]
}

// upsertJob adds an empty job under tenant, or at the top level when tenant
// is empty.
func (g *Graph) upsertJob(tenant, name string) *Job {
	if tenant == "" {
		return g.AddJob(&Job{Name: name})
	}
	return g.AddTenantJob(tenant, &Job{Name: name})
}

// Job looks a job up by tenant and name. An empty tenant means top level.
func (g *Graph) Job(tenant, name string) (*Job, bool) {
	if tenant == "" {
		j, ok := g.Jobs[name]
		return j, ok
	}
	t, ok := g.Tenants[tenant]
	if !ok {
		return nil, false
	}
	j, ok := t.Jobs[name]
	return j, ok
}

// AddVariant appends v to the job's variants. Variants are never deduplicated.
func (g *Graph) AddVariant(tenant, job string, v *Variant) *Variant {
	j := g.upsertJob(tenant, job)
	stored := v.Clone()
	j.Variants = append(j.Variants, stored)
	return stored
}

// AddBuild upserts the job named by b.Job, then merges b under it.
func (g *Graph) AddBuild(tenant string, b *Build) *Build {
	j := g.upsertJob(tenant, b.Job)
	j.Builds = mergeChildren(j.Builds, map[string]*Build{b.ID: b})
	return j.Builds[b.ID]
}

// AddSuite upserts the job and build, then merges s under the build.
func (g *Graph) AddSuite(tenant, job, build string, s *TestSuite) *TestSuite {
	b := g.AddBuild(tenant, &Build{ID: build, Job: job})
	b.Suites = mergeChildren(b.Suites, map[string]*TestSuite{s.Name: s})
	return b.Suites[s.Name]
}

// AddTest upserts the whole chain down to the suite, then merges t.
func (g *Graph) AddTest(tenant, job, build, suite string, t *Test) *Test {
	s := g.AddSuite(tenant, job, build, &TestSuite{Name: suite})
	s.Tests = mergeChildren(s.Tests, map[string]*Test{t.Name: t})
	return s.Tests[t.Name]
}

// SetDeployment merges d into the job's deployment.
func (g *Graph) SetDeployment(tenant, job string, d *Deployment) *Deployment {
	j := g.upsertJob(tenant, job)
	j.Merge(&Job{Deployment: d})
	return j.Deployment
}

// JobCount returns the number of jobs in the graph, across tenants.
func (g *Graph) JobCount() int {
	n := len(g.Jobs)
	for _, t := range g.Tenants {
		n += len(t.Jobs)
	}
	return n
}
