package jenkins

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
	"ciquery/internal/sources/cirules"

	"gopkg.in/yaml.v3"
)

// artifact is the provisioning summary a job archives.
type artifact struct {
	Release   string         `yaml:"release"`
	InfraType string         `yaml:"infra_type"`
	Topology  yaml.Node      `yaml:"topology"`
	Network   artifactNet    `yaml:"network"`
	Storage   artifactStore  `yaml:"storage"`
	Nodes     []artifactNode `yaml:"nodes"`
}

type artifactNet struct {
	IPVersion string `yaml:"ip_version"`
	Backend   string `yaml:"backend"`
	ML2Driver string `yaml:"ml2_driver"`
	DVR       string `yaml:"dvr"`
}

type artifactStore struct {
	Backend string `yaml:"backend"`
}

type artifactNode struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

func parseArtifact(data []byte) (*artifact, error) {
	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse deployment artifact: %w", err)
	}
	return &a, nil
}

// topology returns the artifact topology as "role:count,..." whether it was
// written as a mapping or as a string.
func (a *artifact) topology() string {
	switch a.Topology.Kind {
	case yaml.MappingNode:
		counts := map[string]int{}
		if err := a.Topology.Decode(&counts); err != nil {
			return ""
		}
		return formatTopology(counts)
	case yaml.ScalarNode:
		return a.Topology.Value
	}
	if len(a.Nodes) == 0 {
		return ""
	}
	counts := map[string]int{}
	for _, n := range a.Nodes {
		counts[n.Role]++
	}
	return formatTopology(counts)
}

func (a *artifact) field(name string) string {
	switch name {
	case "release":
		return a.Release
	case "infra_type":
		return a.InfraType
	case "topology":
		return a.topology()
	case "dvr":
		return normalizeBool(a.Network.DVR)
	case "ip_version":
		return a.Network.IPVersion
	case "network_backend":
		return a.Network.Backend
	case "ml2_driver":
		return a.Network.ML2Driver
	case "storage_backend":
		return a.Storage.Backend
	}
	return ""
}

func formatTopology(counts map[string]int) string {
	roles := make([]string, 0, len(counts))
	for r, n := range counts {
		if r != "" && n > 0 {
			roles = append(roles, r)
		}
	}
	sort.Strings(roles)
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = r + ":" + strconv.Itoa(counts[r])
	}
	return strings.Join(parts, ",")
}

func normalizeBool(v string) string {
	switch strings.ToLower(v) {
	case "true", "yes", "1":
		return "True"
	case "false", "no", "0":
		return "False"
	}
	return v
}

var (
	nameTopology = map[string]*regexp.Regexp{
		"controller": regexp.MustCompile(`(\d+)cont`),
		"compute":    regexp.MustCompile(`(\d+)comp`),
		"ceph":       regexp.MustCompile(`(\d+)ceph`),
		"networker":  regexp.MustCompile(`(\d+)net(?:worker)?s?(?:[_-]|$)`),
		"database":   regexp.MustCompile(`(\d+)db`),
	}
	nameRelease   = regexp.MustCompile(`(?:osp|rhos|release)[-_]?(\d+(?:\.\d+)?)`)
	nameInfra     = regexp.MustCompile(`(ovb|virthost|baremetal|libvirt)`)
	nameIPVersion = regexp.MustCompile(`ipv(4|6)`)
	nameNetwork   = regexp.MustCompile(`(geneve|vxlan|gre|vlan)`)
	nameML2       = regexp.MustCompile(`(ovn|ovs)`)
	nameStorage   = regexp.MustCompile(`(ceph|lvm|nfs|swift)`)
	nameNoDVR     = regexp.MustCompile(`no[-_]?dvr`)
)

// fromJobName derives a deployment field by matching the job name.
func fromJobName(job, field string) string {
	name := strings.ToLower(job)
	first := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1]
		}
		return ""
	}
	switch field {
	case "release":
		return first(nameRelease)
	case "infra_type":
		return first(nameInfra)
	case "topology":
		counts := map[string]int{}
		for role, re := range nameTopology {
			if m := re.FindStringSubmatch(name); m != nil {
				counts[role], _ = strconv.Atoi(m[1])
			}
		}
		return formatTopology(counts)
	case "dvr":
		if nameNoDVR.MatchString(name) {
			return "False"
		}
		if strings.Contains(name, "dvr") {
			return "True"
		}
	case "ip_version":
		return first(nameIPVersion)
	case "network_backend":
		return first(nameNetwork)
	case "ml2_driver":
		return first(nameML2)
	case "storage_backend":
		return first(nameStorage)
	}
	return ""
}

// deploymentRecord derives the deployment of a job, preferring the archived
// artifact and falling back to the job name. Requested fields nobody could
// derive are filter.NotAvailable.
func (s *Source) deploymentRecord(ctx context.Context, job string, args filter.Args) (filter.Record, error) {
	requested := cirules.Requested(args)

	var art *artifact
	var artErr error
	loaded := false
	loadArtifact := func() (*artifact, error) {
		if !loaded {
			loaded = true
			art, artErr = s.fetchArtifact(ctx, job)
		}
		return art, artErr
	}

	rec := filter.Record{"name": job}
	for _, field := range cirules.DeploymentFields {
		field := field
		d, err := filter.Derive(requested[field],
			filter.Method{Name: "artifact", Fn: func() (string, error) {
				a, err := loadArtifact()
				if err != nil {
					return "", err
				}
				return a.field(field), nil
			}},
			filter.Method{Name: "job-name", Fn: func() (string, error) {
				return fromJobName(job, field), nil
			}},
		)
		if err != nil {
			return nil, err
		}
		rec[field] = d.Value
	}

	roles := map[string]string{}
	var nodes []string
	if a, err := loadArtifact(); err == nil {
		for _, n := range a.Nodes {
			nodes = append(nodes, n.Name)
			roles[n.Name] = n.Role
		}
	}
	rec["nodes"] = nodes
	rec["roles"] = roles
	return rec, nil
}

// fetchArtifact loads the provisioning artifact of the last successful build.
// A missing artifact is filter.ErrNotFound.
func (s *Source) fetchArtifact(ctx context.Context, job string) (*artifact, error) {
	if s.artifact == "" {
		return nil, filter.ErrNotFound
	}
	path := fmt.Sprintf("%s/lastSuccessfulBuild/artifact/%s", jobPath(job), strings.TrimLeft(s.artifact, "/"))
	data, err := s.client.GetRaw(ctx, path, nil)
	if err != nil {
		if httpapi.IsNotFound(err) {
			return nil, filter.ErrNotFound
		}
		return nil, err
	}
	return parseArtifact(data)
}
