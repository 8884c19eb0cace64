// Package zuuld reads job definitions straight from the zuul.d YAML files of
// local repository checkouts.
package zuuld

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ciquery/internal/filter"
	"ciquery/internal/model"
	"ciquery/internal/source"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const Driver = "zuul.d"

const DefaultTenant = "default"

var capabilities = source.Capabilities{
	source.GetJobs:     {Base: 1},
	source.GetVariants: {Base: 1},
}

var (
	tenantRules = filter.Rules{{Name: "tenants", Field: "name", Mode: filter.Regex}}
	jobRules    = filter.Rules{{Name: "jobs", Field: "name", Mode: filter.Regex}}
	variantRule = filter.Rules{{Name: "variants", Field: "branch_list", Mode: filter.Regex}}
)

// Config configures one static definitions source.
type Config struct {
	Name     string
	Enabled  bool
	Priority int
	// Repos are local checkout directories.
	Repos  []string
	Tenant string
}

type Source struct {
	source.Base
	repos  []string
	tenant string
}

func New(cfg Config) *Source {
	s := &Source{repos: cfg.Repos, tenant: cfg.Tenant}
	if s.tenant == "" {
		s.tenant = DefaultTenant
	}
	s.Descriptor = source.Descriptor{
		Name:         cfg.Name,
		Driver:       Driver,
		Enabled:      cfg.Enabled,
		Priority:     cfg.Priority,
		Capabilities: capabilities,
	}
	s.OnSetup = s.checkRepos
	return s
}

func (s *Source) checkRepos(context.Context) error {
	if len(s.repos) == 0 {
		return source.Failf("no repositories configured")
	}
	for _, r := range s.repos {
		info, err := os.Stat(r)
		if err != nil {
			return source.Fail(err)
		}
		if !info.IsDir() {
			return source.Failf("%s is not a directory", r)
		}
	}
	return nil
}

// stringList accepts a scalar or a sequence.
type stringList []string

func (l *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = stringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected string or list", n.Line)
}

// nodeset accepts a nodeset name or an inline nodeset with a name.
type nodeset string

func (ns *nodeset) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*ns = nodeset(n.Value)
	case yaml.MappingNode:
		var inline struct {
			Name string `yaml:"name"`
		}
		if err := n.Decode(&inline); err != nil {
			return err
		}
		*ns = nodeset(inline.Name)
		if *ns == "" {
			*ns = "inline"
		}
	}
	return nil
}

type jobDef struct {
	Name        string         `yaml:"name"`
	Parent      string         `yaml:"parent"`
	Description string         `yaml:"description"`
	Branches    stringList     `yaml:"branches"`
	Nodeset     nodeset        `yaml:"nodeset"`
	Vars        map[string]any `yaml:"vars"`
}

type configItem struct {
	Job *jobDef `yaml:"job"`
}

// definitionFiles lists the Zuul configuration files of a repository in the
// order Zuul loads them.
func definitionFiles(repo string) ([]string, error) {
	var files []string
	for _, name := range []string{"zuul.yaml", ".zuul.yaml"} {
		p := filepath.Join(repo, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	for _, dir := range []string{"zuul.d", ".zuul.d"} {
		for _, ext := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(repo, dir, ext))
			if err != nil {
				return nil, err
			}
			sort.Strings(matches)
			files = append(files, matches...)
		}
	}
	return files, nil
}

type definition struct {
	job  *jobDef
	path string
}

func (s *Source) load() ([]definition, error) {
	var defs []definition
	for _, repo := range s.repos {
		files, err := definitionFiles(repo)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, err
			}
			var items []configItem
			if err := yaml.Unmarshal(data, &items); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", f, err)
			}
			rel, err := filepath.Rel(filepath.Dir(repo), f)
			if err != nil {
				rel = f
			}
			for _, it := range items {
				if it.Job == nil || it.Job.Name == "" {
					continue
				}
				defs = append(defs, definition{job: it.Job, path: filepath.ToSlash(rel)})
			}
		}
	}
	log.Debug().Str("source", s.Name()).Int("definitions", len(defs)).Msg("Loaded job definitions")
	return defs, nil
}

func (s *Source) Query(ctx context.Context, c source.Capability, args filter.Args) (*model.Graph, error) {
	if c != source.GetJobs && c != source.GetVariants {
		return nil, s.Unsupported(c)
	}
	g, err := s.query(args, c == source.GetVariants)
	if err != nil {
		var bad *filter.InvalidExpressionError
		if errors.As(err, &bad) {
			return nil, err
		}
		return nil, source.Fail(err)
	}
	return g, nil
}

func (s *Source) query(args filter.Args, withVariants bool) (*model.Graph, error) {
	// Definitions carry no project or pipeline membership to narrow by.
	for _, name := range []string{"projects", "pipelines"} {
		if args.Has(name) {
			return nil, source.Failf("%s cannot be filtered by job definitions", name)
		}
	}
	g := model.NewGraph()
	tp, err := tenantRules.Compile(args)
	if err != nil {
		return nil, err
	}
	if _, ok := tp.Keep(filter.Record{"name": s.tenant}); !ok {
		return g, nil
	}
	jp, err := jobRules.Compile(args)
	if err != nil {
		return nil, err
	}
	vp, err := variantRule.Compile(args)
	if err != nil {
		return nil, err
	}
	defs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if _, ok := jp.Keep(filter.Record{"name": d.job.Name}); !ok {
			continue
		}
		if !withVariants {
			g.AddTenantJob(s.tenant, &model.Job{Name: d.job.Name})
			continue
		}
		if _, ok := vp.Keep(filter.Record{"branch_list": []string(d.job.Branches)}); !ok {
			continue
		}
		g.AddVariant(s.tenant, d.job.Name, &model.Variant{
			Description: strings.TrimSpace(d.job.Description),
			Parent:      d.job.Parent,
			Branches:    []string(d.job.Branches),
			NodeSet:     string(d.job.Nodeset),
			Vars:        d.job.Vars,
			Source:      d.path,
		})
	}
	return g, nil
}
