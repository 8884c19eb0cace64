package model

import (
	"maps"
	"slices"
)

// Job is a CI job. In Jenkins-style systems jobs sit at the top of the graph;
// in Zuul-style systems they belong to a tenant.
type Job struct {
	Name       string            `json:"name"`
	URL        string            `json:"url,omitempty"`
	Variants   []*Variant        `json:"variants,omitempty"`
	Builds     map[string]*Build `json:"builds,omitempty"`
	Deployment *Deployment       `json:"deployment,omitempty"`
}

// Merge folds o into j. Variants are appended without deduplication: a
// variant has no identity within its job.
func (j *Job) Merge(o *Job) {
	mergeString(&j.Name, o.Name)
	mergeString(&j.URL, o.URL)
	for _, v := range o.Variants {
		j.Variants = append(j.Variants, v.Clone())
	}
	j.Builds = mergeChildren(j.Builds, o.Builds)
	switch {
	case o.Deployment == nil:
	case j.Deployment == nil:
		j.Deployment = o.Deployment.Clone()
	default:
		j.Deployment.Merge(o.Deployment)
	}
}

func (j *Job) Clone() *Job {
	out := &Job{Name: j.Name, URL: j.URL, Builds: cloneChildren(j.Builds)}
	for _, v := range j.Variants {
		out.Variants = append(out.Variants, v.Clone())
	}
	if j.Deployment != nil {
		out.Deployment = j.Deployment.Clone()
	}
	return out
}

// Variant is the behaviour of a job under a specific branch or context.
type Variant struct {
	Description string         `json:"description,omitempty"`
	Parent      string         `json:"parent,omitempty"`
	Branches    []string       `json:"branches,omitempty"`
	NodeSet     string         `json:"nodeset,omitempty"`
	Vars        map[string]any `json:"vars,omitempty"`
	Source      string         `json:"source,omitempty"`
}

func (v *Variant) Clone() *Variant {
	return &Variant{
		Description: v.Description,
		Parent:      v.Parent,
		Branches:    slices.Clone(v.Branches),
		NodeSet:     v.NodeSet,
		Vars:        maps.Clone(v.Vars),
		Source:      v.Source,
	}
}

// Build is one run of a job, keyed by its uuid (Zuul) or number (Jenkins).
// Job names the owning job; it is resolved by lookup, never held as a pointer.
type Build struct {
	ID       string                `json:"id"`
	Job      string                `json:"job,omitempty"`
	Project  string                `json:"project,omitempty"`
	Pipeline string                `json:"pipeline,omitempty"`
	Result   string                `json:"result,omitempty"`
	Duration int                   `json:"duration,omitempty"`
	Suites   map[string]*TestSuite `json:"suites,omitempty"`
}

func (b *Build) Merge(o *Build) {
	mergeString(&b.ID, o.ID)
	mergeString(&b.Job, o.Job)
	mergeString(&b.Project, o.Project)
	mergeString(&b.Pipeline, o.Pipeline)
	mergeString(&b.Result, o.Result)
	mergeInt(&b.Duration, o.Duration)
	b.Suites = mergeChildren(b.Suites, o.Suites)
}

func (b *Build) Clone() *Build {
	out := *b
	out.Suites = cloneChildren(b.Suites)
	return &out
}

// TestSuite groups the tests of a build, keyed by name.
type TestSuite struct {
	Name  string           `json:"name"`
	Tests map[string]*Test `json:"tests,omitempty"`
}

func (s *TestSuite) Merge(o *TestSuite) {
	mergeString(&s.Name, o.Name)
	s.Tests = mergeChildren(s.Tests, o.Tests)
}

func (s *TestSuite) Clone() *TestSuite {
	return &TestSuite{Name: s.Name, Tests: cloneChildren(s.Tests)}
}

// Test is one test case result.
type Test struct {
	Name      string  `json:"name"`
	ClassName string  `json:"class_name,omitempty"`
	Result    string  `json:"result,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	URL       string  `json:"url,omitempty"`
}

func (t *Test) Merge(o *Test) {
	mergeString(&t.Name, o.Name)
	mergeString(&t.ClassName, o.ClassName)
	mergeString(&t.Result, o.Result)
	mergeFloat(&t.Duration, o.Duration)
	mergeString(&t.URL, o.URL)
}

func (t *Test) Clone() *Test {
	out := *t
	return &out
}
