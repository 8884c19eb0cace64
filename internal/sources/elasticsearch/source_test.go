package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ciquery/internal/filter"
	"ciquery/internal/httpapi"
	"ciquery/internal/model"
	"ciquery/internal/source"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const hits = `{"hits":{"hits":[
	{"_source":{"job_name":"osp17-ovb-3cont","job_url":"https://ci/job/osp17-ovb-3cont/","build_num":7,"build_result":"SUCCESS","build_duration":300,
		"release":"17.1","topology":"compute:2,controller:3","ip_version":"4"}},
	{"_source":{"job_name":"osp17-ovb-3cont","job_url":"https://ci/job/osp17-ovb-3cont/","build_num":8,"build_result":"FAILURE","build_duration":20,
		"release":"17.1","topology":"compute:2,controller:3","ip_version":"6"}},
	{"_source":{"job_name":"osp16-virt","job_url":"https://ci/job/osp16-virt/","build_num":3,"build_result":"SUCCESS","build_duration":100,
		"release":"16.2","topology":"compute:1,controller:1"}}]}}`

type recorder struct {
	bodies []map[string]any
}

func newSource(t *testing.T, rec *recorder) *Source {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/ci-builds":
			_, _ = w.Write([]byte(`{"ci-builds":{}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/ci-builds/_search":
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			rec.bodies = append(rec.bodies, body)
			_, _ = w.Write([]byte(hits))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return New(Config{Name: "es", Enabled: true, Index: "ci-builds", HTTP: httpapi.Config{BaseURL: srv.URL}})
}

func args(specs ...*filter.Spec) filter.Args {
	a := filter.Args{}
	for _, s := range specs {
		a[s.Name] = s
	}
	return a
}

func TestQuery_Jobs(t *testing.T) {
	s := newSource(t, &recorder{})
	if err := s.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	g, err := s.Query(context.Background(), source.GetJobs, args(filter.MustNew("jobs", []string{"ovb"}, filter.Regex)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"osp17-ovb-3cont"}, model.SortedKeys(g.Jobs)); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_BuildsFilteredClientSide(t *testing.T) {
	s := newSource(t, &recorder{})
	g, err := s.Query(context.Background(), source.GetBuilds, args(
		filter.MustNew("build_status", []string{"success"}, filter.CaseInsensitive),
	))
	if err != nil {
		t.Fatal(err)
	}
	j, _ := g.Job("", "osp17-ovb-3cont")
	want := map[string]*model.Build{"7": {ID: "7", Job: "osp17-ovb-3cont", Result: "SUCCESS", Duration: 300}}
	if diff := cmp.Diff(want, j.Builds); diff != "" {
		t.Errorf("builds mismatch (-want +got):\n%s", diff)
	}
	if _, ok := g.Job("", "osp16-virt"); !ok {
		t.Error("osp16-virt missing")
	}
}

func TestQuery_DeploymentUsesNewestBuild(t *testing.T) {
	s := newSource(t, &recorder{})
	g, err := s.Query(context.Background(), source.GetDeployment, args(
		filter.MustNew("controllers", []string{">2"}, filter.Range),
		filter.MustNew("storage_backend", nil, filter.Exact),
	))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"osp17-ovb-3cont"}, model.SortedKeys(g.Jobs)); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
	d := g.Jobs["osp17-ovb-3cont"].Deployment
	if d.Network.IPVersion != "6" {
		t.Errorf("IPVersion = %q, want newest build's 6", d.Network.IPVersion)
	}
	if d.Storage.Backend != filter.NotAvailable {
		t.Errorf("Storage = %q, want %q", d.Storage.Backend, filter.NotAvailable)
	}
}

func TestSearchBody(t *testing.T) {
	tests := []struct {
		name string
		args filter.Args
		want map[string]any
	}{
		{
			name: "no filters",
			args: filter.Args{},
			want: map[string]any{"match_all": map[string]any{}},
		},
		{
			name: "literal job and status",
			args: args(
				filter.MustNew("jobs", []string{"ovb"}, filter.Regex),
				filter.MustNew("build_status", []string{"failure"}, filter.CaseInsensitive),
			),
			want: map[string]any{"bool": map[string]any{
				"must": []any{map[string]any{"bool": map[string]any{
					"should":               []any{map[string]any{"wildcard": map[string]any{"job_name.keyword": "*ovb*"}}},
					"minimum_should_match": 1,
				}}},
				"filter": []any{map[string]any{"terms": map[string]any{"build_result.keyword": []string{"failure", "FAILURE"}}}},
			}},
		},
		{
			name: "status pushed in every case",
			args: args(filter.MustNew("build_status", []string{"Success", "ABORTED"}, filter.CaseInsensitive)),
			want: map[string]any{"bool": map[string]any{
				"filter": []any{map[string]any{"terms": map[string]any{
					"build_result.keyword": []string{"Success", "SUCCESS", "success", "ABORTED", "aborted"},
				}}},
			}},
		},
		{
			name: "regex job is not pushed down",
			args: args(filter.MustNew("jobs", []string{"^osp1[67]"}, filter.Regex)),
			want: map[string]any{"match_all": map[string]any{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchBody(tt.args, 10)["query"]
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuery_SearchFailureIsQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s := New(Config{Name: "es", Enabled: true, HTTP: httpapi.Config{BaseURL: srv.URL}})

	_, err := s.Query(context.Background(), source.GetBuilds, nil)
	var qe *source.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want *source.QueryError", err)
	}
}

func TestQuery_SendsSizeAndSort(t *testing.T) {
	rec := &recorder{}
	s := newSource(t, rec)
	if _, err := s.Query(context.Background(), source.GetJobs, nil); err != nil {
		t.Fatal(err)
	}
	if len(rec.bodies) != 1 {
		t.Fatalf("searches = %d, want 1", len(rec.bodies))
	}
	if size, _ := rec.bodies[0]["size"].(float64); size != DefaultSize {
		t.Errorf("size = %v, want %d", rec.bodies[0]["size"], DefaultSize)
	}
}

func TestQuery_WarnsWhenSearchIsCapped(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	rec := &recorder{}
	s := newSource(t, rec)
	if _, err := s.Query(context.Background(), source.GetJobs, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("warned below the size cap:\n%s", buf.String())
	}

	s.size = 3
	if _, err := s.Query(context.Background(), source.GetJobs, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"size":3`, `"index":"ci-builds"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}
