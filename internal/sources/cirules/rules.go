// Package cirules holds the filter rule sets shared by the sources that
// report Jenkins-style jobs (numbered builds, per-job deployments).
package cirules

import (
	"strconv"

	"ciquery/internal/filter"
	"ciquery/internal/model"
)

var (
	Jobs = filter.Rules{
		{Name: "jobs", Field: "name", Mode: filter.Regex},
		{Name: "job_url", Field: "url", Mode: filter.Regex},
	}
	Builds = filter.Rules{
		{Name: "builds", Field: "number", Mode: filter.Exact},
		{Name: "build_status", Field: "result", Mode: filter.CaseInsensitive},
	}
	Tests = filter.Rules{
		{Name: "tests", Field: "name", Mode: filter.Regex},
		{Name: "test_result", Field: "status", Mode: filter.CaseInsensitive},
		{Name: "test_duration", Field: "duration", Mode: filter.Range},
	}
	Deployment = filter.Rules{
		{Name: "release", Field: "release", Mode: filter.Exact},
		{Name: "infra_type", Field: "infra_type", Mode: filter.Exact},
		{Name: "topology", Field: "topology", Mode: filter.Regex},
		{Name: "controllers", Field: "topology", Mode: filter.Range, Count: filter.TopologyCount("topology", "controller")},
		{Name: "computes", Field: "topology", Mode: filter.Range, Count: filter.TopologyCount("topology", "compute")},
		{Name: "dvr", Field: "dvr", Mode: filter.CaseInsensitive, Default: []string{"True"}},
		{Name: "ip_version", Field: "ip_version", Mode: filter.Exact},
		{Name: "network_backend", Field: "network_backend", Mode: filter.Exact},
		{Name: "ml2_driver", Field: "ml2_driver", Mode: filter.Exact},
		{Name: "storage_backend", Field: "storage_backend", Mode: filter.Exact},
		{Name: "nodes", Field: "nodes", Mode: filter.SetMembership},
	}
)

// DeploymentArgs maps every deployment argument to the record field it needs.
var DeploymentArgs = map[string]string{
	"release":         "release",
	"infra_type":      "infra_type",
	"topology":        "topology",
	"controllers":     "topology",
	"computes":        "topology",
	"dvr":             "dvr",
	"ip_version":      "ip_version",
	"network_backend": "network_backend",
	"ml2_driver":      "ml2_driver",
	"storage_backend": "storage_backend",
	"nodes":           "nodes",
}

// DeploymentFields are the scalar deployment fields.
var DeploymentFields = []string{
	"release", "infra_type", "topology", "dvr", "ip_version",
	"network_backend", "ml2_driver", "storage_backend",
}

// Requested returns the deployment fields the supplied arguments ask for.
func Requested(args filter.Args) map[string]bool {
	out := map[string]bool{}
	for arg, field := range DeploymentArgs {
		if args.Has(arg) {
			out[field] = true
		}
	}
	return out
}

// Newest keeps the build record with the highest number.
func Newest(builds []filter.Record) []filter.Record {
	var last filter.Record
	lastN := -1
	for _, b := range builds {
		n, err := strconv.Atoi(b.Text("number"))
		if err == nil && n > lastN {
			last, lastN = b, n
		}
	}
	if last == nil {
		return nil
	}
	return []filter.Record{last}
}

// ToDeployment converts a filtered deployment record. A "roles" field of
// type map[string]string supplies node roles.
func ToDeployment(rec filter.Record) *model.Deployment {
	d := &model.Deployment{
		Release:   rec.Text("release"),
		InfraType: rec.Text("infra_type"),
		Topology:  rec.Text("topology"),
		Network: model.Network{
			IPVersion:      rec.Text("ip_version"),
			NetworkBackend: rec.Text("network_backend"),
			ML2Driver:      rec.Text("ml2_driver"),
			DVR:            rec.Text("dvr"),
		},
		Storage: model.Storage{Backend: rec.Text("storage_backend")},
	}
	roles, _ := rec["roles"].(map[string]string)
	if nodes, _ := rec["nodes"].([]string); len(nodes) > 0 {
		d.Nodes = make(map[string]*model.Node, len(nodes))
		for _, n := range nodes {
			d.Nodes[n] = &model.Node{Name: n, Role: roles[n]}
		}
	}
	return d
}
