package zuul

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
)

type tenantDTO struct {
	Name string `json:"name"`
}

type projectDTO struct {
	Name          string `json:"name"`
	CanonicalName string `json:"canonical_name"`
	Type          string `json:"type"`
}

type projectDetailsDTO struct {
	Name    string             `json:"name"`
	Configs []projectConfigDTO `json:"configs"`
}

type projectConfigDTO struct {
	Pipelines []pipelineDTO `json:"pipelines"`
}

type pipelineDTO struct {
	Name string `json:"name"`
	// Jobs is a list of job graphs, each a list of variants of one job.
	Jobs [][]struct {
		Name string `json:"name"`
	} `json:"jobs"`
}

type jobDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type variantDTO struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Parent        string         `json:"parent"`
	Branches      []string       `json:"branches"`
	Variables     map[string]any `json:"variables"`
	Nodeset       *nodesetDTO    `json:"nodeset"`
	SourceContext *struct {
		Project string `json:"project"`
		Branch  string `json:"branch"`
		Path    string `json:"path"`
	} `json:"source_context"`
}

type nodesetDTO struct {
	Name string `json:"name"`
}

type buildDTO struct {
	UUID      string   `json:"uuid"`
	JobName   string   `json:"job_name"`
	Result    *string  `json:"result"`
	Duration  *float64 `json:"duration"`
	Project   string   `json:"project"`
	Pipeline  string   `json:"pipeline"`
	StartTime string   `json:"start_time"`
}

func tenantPath(tenant string, parts ...string) string {
	p := "api/tenant/" + url.PathEscape(tenant)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func fetchTenants(ctx context.Context, c *httpapi.Client) ([]filter.Record, error) {
	var resp []tenantDTO
	if err := c.GetJSON(ctx, "api/tenants", nil, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp))
	for _, t := range resp {
		records = append(records, filter.Record{"name": t.Name})
	}
	return records, nil
}

func fetchProjects(ctx context.Context, c *httpapi.Client, tenant string) ([]filter.Record, error) {
	var resp []projectDTO
	if err := c.GetJSON(ctx, tenantPath(tenant, "projects"), nil, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp))
	for _, p := range resp {
		records = append(records, filter.Record{
			"name":           p.Name,
			"canonical_name": p.CanonicalName,
			"url":            fmt.Sprintf("%s/t/%s/project/%s", c.BaseURL(), tenant, p.CanonicalName),
		})
	}
	return records, nil
}

// fetchPipelines returns the project's pipelines with the names of the jobs
// each one triggers, merged across the project's config branches.
func fetchPipelines(ctx context.Context, c *httpapi.Client, tenant, project string) ([]filter.Record, error) {
	var resp projectDetailsDTO
	if err := c.GetJSON(ctx, tenantPath(tenant, "project", project), nil, &resp); err != nil {
		return nil, err
	}
	var order []string
	jobs := map[string][]string{}
	for _, cfg := range resp.Configs {
		for _, p := range cfg.Pipelines {
			if _, seen := jobs[p.Name]; !seen {
				order = append(order, p.Name)
				jobs[p.Name] = nil
			}
			for _, variants := range p.Jobs {
				if len(variants) == 0 {
					continue
				}
				if name := variants[0].Name; !slices.Contains(jobs[p.Name], name) {
					jobs[p.Name] = append(jobs[p.Name], name)
				}
			}
		}
	}
	records := make([]filter.Record, 0, len(order))
	for _, name := range order {
		records = append(records, filter.Record{"name": name, "jobs": jobs[name]})
	}
	return records, nil
}

func fetchJobs(ctx context.Context, c *httpapi.Client, tenant string) ([]filter.Record, error) {
	var resp []jobDTO
	if err := c.GetJSON(ctx, tenantPath(tenant, "jobs"), nil, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp))
	for _, j := range resp {
		records = append(records, filter.Record{
			"name":        j.Name,
			"description": j.Description,
			"url":         jobURL(c, tenant, j.Name),
		})
	}
	return records, nil
}

func jobURL(c *httpapi.Client, tenant, job string) string {
	return fmt.Sprintf("%s/t/%s/job/%s", c.BaseURL(), tenant, job)
}

func fetchVariants(ctx context.Context, c *httpapi.Client, tenant, job string) ([]filter.Record, error) {
	var resp []variantDTO
	if err := c.GetJSON(ctx, tenantPath(tenant, "job", url.PathEscape(job)), nil, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp))
	for _, v := range resp {
		rec := filter.Record{
			"description": v.Description,
			"parent":      v.Parent,
			"branch_list": v.Branches,
			"vars":        v.Variables,
		}
		if v.Nodeset != nil {
			rec["nodeset"] = v.Nodeset.Name
		}
		if sc := v.SourceContext; sc != nil {
			rec["source"] = fmt.Sprintf("%s/%s@%s", sc.Project, sc.Path, sc.Branch)
		}
		records = append(records, rec)
	}
	return records, nil
}

// fetchBuilds returns the job's most recent builds, newest first.
func fetchBuilds(ctx context.Context, c *httpapi.Client, tenant, job string, limit int) ([]filter.Record, error) {
	var resp []buildDTO
	params := url.Values{"job_name": {job}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if err := c.GetJSON(ctx, tenantPath(tenant, "builds"), params, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp))
	for _, b := range resp {
		result := "IN_PROGRESS"
		if b.Result != nil {
			result = *b.Result
		}
		duration := 0
		if b.Duration != nil {
			duration = int(*b.Duration)
		}
		records = append(records, filter.Record{
			"uuid":     b.UUID,
			"job":      b.JobName,
			"result":   result,
			"duration": duration,
			"project":  b.Project,
			"pipeline": b.Pipeline,
		})
	}
	return records, nil
}
