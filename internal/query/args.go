package query

import (
	"fmt"
	"strings"

	"ciquery/internal/filter"
)

// Argument describes one query filter as the CLI and the MCP tool expose it.
type Argument struct {
	Name  string
	Mode  filter.Mode
	Usage string
	// Bare is the value list a flag given without values stands for.
	Bare bool
}

// Flag returns the CLI flag name.
func (a Argument) Flag() string {
	return strings.ReplaceAll(a.Name, "_", "-")
}

// Arguments are the supported query filters, grouped by the entity they
// constrain.
var Arguments = []Argument{
	{Name: "tenants", Mode: filter.Regex, Usage: "tenant name patterns", Bare: true},
	{Name: "projects", Mode: filter.Regex, Usage: "project name patterns", Bare: true},
	{Name: "pipelines", Mode: filter.Regex, Usage: "pipeline name patterns", Bare: true},
	{Name: "jobs", Mode: filter.Regex, Usage: "job name patterns", Bare: true},
	{Name: "job_url", Mode: filter.Regex, Usage: "job URL patterns"},
	{Name: "variants", Mode: filter.Regex, Usage: "branch patterns of job variants", Bare: true},
	{Name: "builds", Mode: filter.Exact, Usage: "build ids", Bare: true},
	{Name: "build_status", Mode: filter.CaseInsensitive, Usage: "build results (SUCCESS, FAILURE, ...)", Bare: true},
	{Name: "last_build", Mode: filter.Exact, Usage: "only the newest matching build", Bare: true},
	{Name: "tests", Mode: filter.Regex, Usage: "test name patterns", Bare: true},
	{Name: "test_result", Mode: filter.CaseInsensitive, Usage: "test results (PASSED, FAILED, SKIPPED)", Bare: true},
	{Name: "test_duration", Mode: filter.Range, Usage: "test duration expressions, e.g. '>30'"},
	{Name: "release", Mode: filter.Exact, Usage: "deployed release", Bare: true},
	{Name: "infra_type", Mode: filter.Exact, Usage: "infrastructure type", Bare: true},
	{Name: "topology", Mode: filter.Regex, Usage: "topology patterns", Bare: true},
	{Name: "controllers", Mode: filter.Range, Usage: "controller count expressions, e.g. '>=3'"},
	{Name: "computes", Mode: filter.Range, Usage: "compute count expressions"},
	{Name: "dvr", Mode: filter.CaseInsensitive, Usage: "DVR enabled (True/False); bare flag means True", Bare: true},
	{Name: "ip_version", Mode: filter.Exact, Usage: "IP version (4, 6)", Bare: true},
	{Name: "network_backend", Mode: filter.Exact, Usage: "network backend (geneve, vxlan, ...)", Bare: true},
	{Name: "ml2_driver", Mode: filter.Exact, Usage: "ML2 driver (ovn, ovs)", Bare: true},
	{Name: "storage_backend", Mode: filter.Exact, Usage: "storage backend (ceph, lvm, ...)", Bare: true},
	{Name: "nodes", Mode: filter.SetMembership, Usage: "node names", Bare: true},
}

// LookupArgument returns the argument named name.
func LookupArgument(name string) (Argument, bool) {
	for _, a := range Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

// ParseArgs builds filter specs from raw values. A present key with no
// values is a bare flag: the entity level is requested without narrowing.
func ParseArgs(raw map[string][]string) (filter.Args, error) {
	args := filter.Args{}
	for name, values := range raw {
		a, ok := LookupArgument(name)
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", name)
		}
		var cleaned []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		spec, err := filter.New(name, cleaned, a.Mode)
		if err != nil {
			return nil, err
		}
		args[name] = spec
	}
	return args, nil
}
