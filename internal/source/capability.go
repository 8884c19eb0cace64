package source

import (
	"sort"
)

// Capability names a query a source may answer.
type Capability string

const (
	GetTenants    Capability = "get_tenants"
	GetProjects   Capability = "get_projects"
	GetPipelines  Capability = "get_pipelines"
	GetJobs       Capability = "get_jobs"
	GetVariants   Capability = "get_variants"
	GetBuilds     Capability = "get_builds"
	GetTests      Capability = "get_tests"
	GetDeployment Capability = "get_deployment"
)

// Cost is the preference weight of a source for one capability. Higher is
// preferred. PerFilter adjusts the weight for each filter name supplied.
type Cost struct {
	Base      int            `json:"base"`
	PerFilter map[string]int `json:"per_filter,omitempty"`
}

// Score returns Base plus the deltas of the supplied filters.
func (c Cost) Score(filters []string) int {
	score := c.Base
	for _, f := range filters {
		score += c.PerFilter[f]
	}
	return score
}

// Capabilities is the closed set of capabilities a source declares, with
// their cost tables.
type Capabilities map[Capability]Cost

// Supports reports whether c is declared.
func (cs Capabilities) Supports(c Capability) bool {
	_, ok := cs[c]
	return ok
}

// Names returns the declared capabilities in sorted order.
func (cs Capabilities) Names() []Capability {
	names := make([]Capability, 0, len(cs))
	for c := range cs {
		names = append(names, c)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
