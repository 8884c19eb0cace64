package model

import "slices"

// Tenant is the top of a Zuul-style hierarchy. Jobs belong to the tenant,
// not to a pipeline, since one job runs in many pipelines.
type Tenant struct {
	Name     string              `json:"name"`
	Projects map[string]*Project `json:"projects,omitempty"`
	Jobs     map[string]*Job     `json:"jobs,omitempty"`
}

func (t *Tenant) Merge(o *Tenant) {
	mergeString(&t.Name, o.Name)
	t.Projects = mergeChildren(t.Projects, o.Projects)
	t.Jobs = mergeChildren(t.Jobs, o.Jobs)
}

func (t *Tenant) Clone() *Tenant {
	return &Tenant{
		Name:     t.Name,
		Projects: cloneChildren(t.Projects),
		Jobs:     cloneChildren(t.Jobs),
	}
}

// Project is a repository gated under a tenant.
type Project struct {
	Name      string               `json:"name"`
	URL       string               `json:"url,omitempty"`
	Pipelines map[string]*Pipeline `json:"pipelines,omitempty"`
}

func (p *Project) Merge(o *Project) {
	mergeString(&p.Name, o.Name)
	mergeString(&p.URL, o.URL)
	p.Pipelines = mergeChildren(p.Pipelines, o.Pipelines)
}

func (p *Project) Clone() *Project {
	return &Project{Name: p.Name, URL: p.URL, Pipelines: cloneChildren(p.Pipelines)}
}

// Pipeline lists the jobs it triggers by name. The jobs themselves are owned
// by the tenant.
type Pipeline struct {
	Name string   `json:"name"`
	Jobs []string `json:"jobs,omitempty"`
}

func (p *Pipeline) Merge(o *Pipeline) {
	mergeString(&p.Name, o.Name)
	p.Jobs = mergeNames(p.Jobs, o.Jobs)
}

func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{Name: p.Name, Jobs: slices.Clone(p.Jobs)}
}
