package query

import (
	"ciquery/internal/filter"
	"ciquery/internal/source"
)

// level places a capability in its system's hierarchy. A capability whose
// ancestor chain contains another planned capability makes the ancestor
// redundant: the deeper query walks and records the upper levels itself.
type level struct {
	capability source.Capability
	parent     source.Capability
	args       []string
}

var hierarchies = map[string][]level{
	"jenkins": {
		{source.GetJobs, "", []string{"jobs", "job_url"}},
		{source.GetBuilds, source.GetJobs, []string{"builds", "build_status", "last_build"}},
		{source.GetTests, source.GetBuilds, []string{"tests", "test_result", "test_duration"}},
		{source.GetDeployment, source.GetJobs, []string{
			"release", "infra_type", "topology", "controllers", "computes", "dvr",
			"ip_version", "network_backend", "ml2_driver", "storage_backend", "nodes",
		}},
	},
	"zuul": {
		{source.GetTenants, "", []string{"tenants"}},
		{source.GetProjects, source.GetTenants, []string{"projects"}},
		{source.GetPipelines, source.GetProjects, []string{"pipelines"}},
		{source.GetJobs, source.GetPipelines, []string{"jobs", "job_url"}},
		{source.GetVariants, source.GetJobs, []string{"variants"}},
		{source.GetBuilds, source.GetJobs, []string{"builds", "build_status", "last_build"}},
	},
}

// Plan returns the capabilities to resolve for a system type, in hierarchy
// order. With no recognised argument the top level is listed.
func Plan(systemType string, args filter.Args) []source.Capability {
	levels := hierarchies[systemType]
	if len(levels) == 0 {
		return nil
	}
	parents := map[source.Capability]source.Capability{}
	wanted := map[source.Capability]bool{}
	for _, l := range levels {
		parents[l.capability] = l.parent
		for _, a := range l.args {
			if args.Has(a) {
				wanted[l.capability] = true
			}
		}
	}
	if len(wanted) == 0 {
		return []source.Capability{levels[0].capability}
	}
	for c := range wanted {
		for p := parents[c]; p != ""; p = parents[p] {
			delete(wanted, p)
		}
	}
	var plan []source.Capability
	for _, l := range levels {
		if wanted[l.capability] {
			plan = append(plan, l.capability)
		}
	}
	return plan
}
