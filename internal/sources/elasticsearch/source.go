// Package elasticsearch answers job, build and deployment queries from an
// index of CI build documents.
package elasticsearch

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
	"ciquery/internal/model"
	"ciquery/internal/source"
	"ciquery/internal/sources/cirules"

	"github.com/rs/zerolog/log"
)

const Driver = "elasticsearch"

const (
	DefaultIndex = "jenkins"
	DefaultSize  = 1000
)

var capabilities = source.Capabilities{
	source.GetJobs:       {Base: 1},
	source.GetBuilds:     {Base: 2, PerFilter: map[string]int{"build_status": 2, "builds": 1}},
	source.GetDeployment: {Base: 2, PerFilter: map[string]int{"release": 1}},
}

// Config configures one Elasticsearch source.
type Config struct {
	Name     string
	Enabled  bool
	Priority int
	Index    string
	// Size caps the hits returned per search.
	Size int
	HTTP httpapi.Config
}

type Source struct {
	source.Base
	client *httpapi.Client
	index  string
	size   int
}

func New(cfg Config) *Source {
	s := &Source{client: httpapi.New(cfg.HTTP), index: cfg.Index, size: cfg.Size}
	if s.index == "" {
		s.index = DefaultIndex
	}
	if s.size <= 0 {
		s.size = DefaultSize
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
	if err := s.client.GetJSON(ctx, s.index, nil, &out); err != nil {
		return source.Fail(err)
	}
	log.Debug().Str("source", s.Name()).Str("index", s.index).Msg("Connected to Elasticsearch")
	return nil
}

// document is one indexed build.
type document struct {
	JobName        string `json:"job_name"`
	JobURL         string `json:"job_url"`
	BuildNum       int    `json:"build_num"`
	BuildResult    string `json:"build_result"`
	BuildDuration  int    `json:"build_duration"`
	Release        string `json:"release"`
	InfraType      string `json:"infra_type"`
	Topology       string `json:"topology"`
	IPVersion      string `json:"ip_version"`
	NetworkBackend string `json:"network_backend"`
	ML2Driver      string `json:"ml2_driver"`
	DVR            string `json:"dvr"`
	StorageBackend string `json:"storage_backend"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// literal matches patterns with no regular expression syntax, which can be
// pushed to the index as wildcards.
var literal = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// searchBody narrows the search server side with the filters it can express.
// Every hit is still run through the client-side pipeline.
func searchBody(args filter.Args, size int) map[string]any {
	var must, filt []any
	var wildcards []any
	for _, p := range args.Values("jobs") {
		if !literal.MatchString(p) {
			wildcards = nil
			break
		}
		wildcards = append(wildcards, map[string]any{
			"wildcard": map[string]any{"job_name.keyword": "*" + p + "*"},
		})
	}
	if len(wildcards) > 0 {
		must = append(must, map[string]any{
			"bool": map[string]any{"should": wildcards, "minimum_should_match": 1},
		})
	}
	if statuses := args.Values("build_status"); len(statuses) > 0 {
		filt = append(filt, map[string]any{"terms": map[string]any{"build_result.keyword": statusTerms(statuses)}})
	}
	if builds := args.Values("builds"); len(builds) > 0 {
		filt = append(filt, map[string]any{"terms": map[string]any{"build_num": builds}})
	}
	if releases := args.Values("release"); len(releases) > 0 {
		filt = append(filt, map[string]any{"terms": map[string]any{"release.keyword": releases}})
	}
	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filt) > 0 {
		boolQuery["filter"] = filt
	}
	body := map[string]any{
		"size": size,
		"sort": []any{map[string]any{"build_num": "desc"}},
	}
	if len(boolQuery) > 0 {
		body["query"] = map[string]any{"bool": boolQuery}
	} else {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	}
	return body
}

// statusTerms spells each status as given, upper-cased and lower-cased. The
// keyword field matches exactly.
func statusTerms(statuses []string) []string {
	var terms []string
	for _, st := range statuses {
		for _, v := range []string{st, strings.ToUpper(st), strings.ToLower(st)} {
			if !slices.Contains(terms, v) {
				terms = append(terms, v)
			}
		}
	}
	return terms
}

func (s *Source) search(ctx context.Context, args filter.Args) ([]document, error) {
	var resp searchResponse
	if err := s.client.PostJSON(ctx, s.index+"/_search", searchBody(args, s.size), &resp); err != nil {
		return nil, err
	}
	if len(resp.Hits.Hits) >= s.size {
		log.Warn().Str("source", s.Name()).Str("index", s.index).Int("size", s.size).
			Msg("Search returned a full page; older builds may be missing, narrow the query or raise size")
	}
	docs := make([]document, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
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
		g, err = s.queryBuilds(ctx, args)
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

// jobs groups the hits by job, keeping only jobs that pass the job filters.
func (s *Source) jobs(ctx context.Context, args filter.Args) ([]string, map[string][]document, error) {
	p, err := cirules.Jobs.Compile(args)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.search(ctx, args)
	if err != nil {
		return nil, nil, err
	}
	var order []string
	byJob := map[string][]document{}
	for _, d := range docs {
		if _, seen := byJob[d.JobName]; !seen {
			if _, ok := p.Keep(filter.Record{"name": d.JobName, "url": d.JobURL}); !ok {
				continue
			}
			order = append(order, d.JobName)
		}
		byJob[d.JobName] = append(byJob[d.JobName], d)
	}
	return order, byJob, nil
}

func (s *Source) queryJobs(ctx context.Context, args filter.Args) (*model.Graph, error) {
	order, byJob, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	g := model.NewGraph()
	for _, name := range order {
		g.AddJob(&model.Job{Name: name, URL: byJob[name][0].JobURL})
	}
	return g, nil
}

func (s *Source) queryBuilds(ctx context.Context, args filter.Args) (*model.Graph, error) {
	order, byJob, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	bp, err := cirules.Builds.Compile(args)
	if err != nil {
		return nil, err
	}
	g := model.NewGraph()
	for _, name := range order {
		var records []filter.Record
		for _, d := range byJob[name] {
			records = append(records, filter.Record{
				"number":   strconv.Itoa(d.BuildNum),
				"result":   d.BuildResult,
				"duration": d.BuildDuration,
			})
		}
		builds := bp.Apply(records)
		if args.Has("last_build") {
			builds = cirules.Newest(builds)
		}
		if len(builds) == 0 {
			continue
		}
		g.AddJob(&model.Job{Name: name, URL: byJob[name][0].JobURL})
		for _, b := range builds {
			duration, _ := b["duration"].(int)
			g.AddBuild("", &model.Build{
				ID:       b.Text("number"),
				Job:      name,
				Result:   b.Text("result"),
				Duration: duration,
			})
		}
	}
	return g, nil
}

// queryDeployment reports the deployment of each job's newest indexed build.
func (s *Source) queryDeployment(ctx context.Context, args filter.Args) (*model.Graph, error) {
	order, byJob, err := s.jobs(ctx, args)
	if err != nil {
		return nil, err
	}
	dp, err := cirules.Deployment.Compile(args)
	if err != nil {
		return nil, err
	}
	requested := cirules.Requested(args)
	g := model.NewGraph()
	for _, name := range order {
		newest := byJob[name][0]
		for _, d := range byJob[name][1:] {
			if d.BuildNum > newest.BuildNum {
				newest = d
			}
		}
		rec := deploymentRecord(newest, requested)
		rec, ok := dp.Keep(rec)
		if !ok {
			continue
		}
		g.AddJob(&model.Job{Name: name, URL: newest.JobURL})
		g.SetDeployment("", name, cirules.ToDeployment(rec))
	}
	return g, nil
}

func deploymentRecord(d document, requested map[string]bool) filter.Record {
	rec := filter.Record{
		"name":            d.JobName,
		"release":         d.Release,
		"infra_type":      d.InfraType,
		"topology":        d.Topology,
		"dvr":             d.DVR,
		"ip_version":      d.IPVersion,
		"network_backend": d.NetworkBackend,
		"ml2_driver":      d.ML2Driver,
		"storage_backend": d.StorageBackend,
	}
	for _, f := range cirules.DeploymentFields {
		if requested[f] && rec.Text(f) == "" {
			rec[f] = filter.NotAvailable
		}
	}
	return rec
}
