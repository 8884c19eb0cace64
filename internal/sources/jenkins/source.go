// Package jenkins answers job, build, test and deployment queries from a
// Jenkins controller's JSON API.
package jenkins

import (
	"context"
	"errors"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
	"ciquery/internal/model"
	"ciquery/internal/source"
	"ciquery/internal/sources/cirules"

	"github.com/rs/zerolog/log"
)

const Driver = "jenkins"

// DefaultArtifact is the provisioning summary path inside a build's archive.
const DefaultArtifact = "infrared/provision.yml"

var capabilities = source.Capabilities{
	source.GetJobs:       {Base: 2},
	source.GetBuilds:     {Base: 1},
	source.GetTests:      {Base: 1},
	source.GetDeployment: {Base: 1},
}

// Config configures one Jenkins source.
type Config struct {
	Name     string
	Enabled  bool
	Priority int
	// Artifact overrides DefaultArtifact; "-" disables artifact lookups.
	Artifact string
	HTTP     httpapi.Config
}

type Source struct {
	source.Base
	client   *httpapi.Client
	artifact string
}

func New(cfg Config) *Source {
	artifact := cfg.Artifact
	switch artifact {
	case "":
		artifact = DefaultArtifact
	case "-":
		artifact = ""
	}
	s := &Source{
		client:   httpapi.New(cfg.HTTP),
		artifact: artifact,
	}
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
	var out map[string]any
	if err := s.client.GetJSON(ctx, "api/json", nil, &out); err != nil {
		return source.Fail(err)
	}
	log.Debug().Str("source", s.Name()).Str("url", s.client.BaseURL()).Msg("Connected to Jenkins")
	return nil
}

func (s *Source) Query(ctx context.Context, c source.Capability, args filter.Args) (*model.Graph, error) {
	var (
		g   *model.Graph
		err error
	)
	switch c {
	case source.GetJobs:
		g, err = s.queryJobs(ctx, args)
	case source.GetBuilds:
		g, err = s.queryBuilds(ctx, args, false)
	case source.GetTests:
		g, err = s.queryBuilds(ctx, args, true)
	case source.GetDeployment:
		g, err = s.queryDeployment(ctx, args)
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
	return g, nil
}

func (s *Source) jobs(ctx context.Context, args filter.Args) ([]filter.Record, error) {
	p, err := cirules.Jobs.Compile(args)
	if err != nil {
		return nil, err
	}
	records, err := fetchJobs(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return p.Apply(records), nil
}

func (s *Source) queryJobs(ctx context.Context, args filter.Args) (*model.Graph, error) {
	jobs, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	g := model.NewGraph()
	for _, j := range jobs {
		g.AddJob(&model.Job{Name: j.Text("name"), URL: j.Text("url")})
	}
	return g, nil
}

func (s *Source) queryBuilds(ctx context.Context, args filter.Args, withTests bool) (*model.Graph, error) {
	jobs, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	bp, err := cirules.Builds.Compile(args)
	if err != nil {
		return nil, err
	}
	tp, err := cirules.Tests.Compile(args)
	if err != nil {
		return nil, err
	}

	g := model.NewGraph()
	for _, j := range jobs {
		name := j.Text("name")
		records, err := fetchBuilds(ctx, s.client, name)
		if err != nil {
			return nil, err
		}
		builds := bp.Apply(records)
		if args.Has("last_build") {
			builds = cirules.Newest(builds)
		}
		if len(builds) == 0 {
			continue
		}
		g.AddJob(&model.Job{Name: name, URL: j.Text("url")})
		for _, b := range builds {
			duration, _ := b["duration"].(int)
			build := &model.Build{
				ID:       b.Text("number"),
				Job:      name,
				Result:   b.Text("result"),
				Duration: duration,
			}
			g.AddBuild("", build)
			if !withTests {
				continue
			}
			tests, err := fetchTests(ctx, s.client, name, build.ID)
			if err != nil {
				return nil, err
			}
			for _, t := range tp.Apply(tests) {
				duration, _ := t["duration"].(float64)
				g.AddTest("", name, build.ID, t.Text("suite"), &model.Test{
					Name:      t.Text("name"),
					ClassName: t.Text("class_name"),
					Result:    t.Text("status"),
					Duration:  duration,
				})
			}
		}
	}
	return g, nil
}

func (s *Source) queryDeployment(ctx context.Context, args filter.Args) (*model.Graph, error) {
	jobs, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	dp, err := cirules.Deployment.Compile(args)
	if err != nil {
		return nil, err
	}

	g := model.NewGraph()
	for _, j := range jobs {
		name := j.Text("name")
		rec, err := s.deploymentRecord(ctx, name, args)
		if err != nil {
			return nil, err
		}
		rec, ok := dp.Keep(rec)
		if !ok {
			continue
		}
		g.AddJob(&model.Job{Name: name, URL: j.Text("url")})
		g.SetDeployment("", name, cirules.ToDeployment(rec))
	}
	return g, nil
}
