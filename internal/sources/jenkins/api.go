package jenkins

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
)

type jobsResponse struct {
	Jobs []jobDTO `json:"jobs"`
}

type jobDTO struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type buildsResponse struct {
	Builds []buildDTO `json:"builds"`
}

type buildDTO struct {
	Number   int     `json:"number"`
	Result   *string `json:"result"`
	Duration int     `json:"duration"`
}

type testReportResponse struct {
	Suites []suiteDTO `json:"suites"`
}

type suiteDTO struct {
	Name  string    `json:"name"`
	Cases []caseDTO `json:"cases"`
}

type caseDTO struct {
	ClassName string  `json:"className"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
}

func jobPath(name string) string {
	return "job/" + url.PathEscape(name)
}

func fetchJobs(ctx context.Context, c *httpapi.Client) ([]filter.Record, error) {
	var resp jobsResponse
	params := url.Values{"tree": {"jobs[name,url]"}}
	if err := c.GetJSON(ctx, "api/json", params, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		records = append(records, filter.Record{"name": j.Name, "url": j.URL})
	}
	return records, nil
}

func fetchBuilds(ctx context.Context, c *httpapi.Client, job string) ([]filter.Record, error) {
	var resp buildsResponse
	params := url.Values{"tree": {"builds[number,result,duration]"}}
	if err := c.GetJSON(ctx, jobPath(job)+"/api/json", params, &resp); err != nil {
		return nil, err
	}
	records := make([]filter.Record, 0, len(resp.Builds))
	for _, b := range resp.Builds {
		result := ""
		if b.Result != nil {
			result = *b.Result
		}
		records = append(records, filter.Record{
			"number":   strconv.Itoa(b.Number),
			"result":   result,
			"duration": b.Duration,
		})
	}
	return records, nil
}

// fetchTests returns nil without error for builds that published no report.
func fetchTests(ctx context.Context, c *httpapi.Client, job, build string) ([]filter.Record, error) {
	var resp testReportResponse
	path := fmt.Sprintf("%s/%s/testReport/api/json", jobPath(job), build)
	params := url.Values{"tree": {"suites[name,cases[className,name,status,duration]]"}}
	if err := c.GetJSON(ctx, path, params, &resp); err != nil {
		if httpapi.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []filter.Record
	for _, s := range resp.Suites {
		for _, tc := range s.Cases {
			records = append(records, filter.Record{
				"suite":      s.Name,
				"class_name": tc.ClassName,
				"name":       tc.Name,
				"status":     tc.Status,
				"duration":   tc.Duration,
			})
		}
	}
	return records, nil
}
