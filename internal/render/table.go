package render

import (
	"fmt"
	"io"
	"strings"

	"ciquery/internal/model"
	"ciquery/internal/query"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableRow is one flattened job or build line.
type tableRow struct {
	system string
	tenant string
	job    string
	build  string
	result string
	tests  string
}

func writeTable(w io.Writer, rep *query.Report) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"System", "Tenant", "Job", "Build", "Result", "Tests"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	total := 0
	for _, env := range rep.Environments {
		for _, sys := range env.Systems {
			for _, r := range flatten(env.Name+"."+sys.Name, sys.Graph) {
				t.AppendRow(table.Row{r.system, r.tenant, r.job, r.build, r.result, r.tests})
				total++
			}
		}
	}
	t.AppendFooter(table.Row{"", "", "", "", "Rows", total})
	t.Render()
	return nil
}

func flatten(system string, g *model.Graph) []tableRow {
	if g.Empty() {
		return nil
	}
	var rows []tableRow
	for _, tname := range model.SortedKeys(g.Tenants) {
		tn := g.Tenants[tname]
		for _, jname := range model.SortedKeys(tn.Jobs) {
			rows = append(rows, jobRows(system, tname, tn.Jobs[jname])...)
		}
	}
	for _, jname := range model.SortedKeys(g.Jobs) {
		rows = append(rows, jobRows(system, "", g.Jobs[jname])...)
	}
	return rows
}

func jobRows(system, tenant string, j *model.Job) []tableRow {
	if len(j.Builds) == 0 {
		return []tableRow{{system: system, tenant: tenant, job: j.Name}}
	}
	var rows []tableRow
	for _, id := range buildIDs(j.Builds) {
		b := j.Builds[id]
		rows = append(rows, tableRow{
			system: system,
			tenant: tenant,
			job:    j.Name,
			build:  b.ID,
			result: b.Result,
			tests:  testSummary(b),
		})
	}
	return rows
}

// testSummary counts test results, e.g. "12 (PASSED 10, FAILED 2)".
func testSummary(b *model.Build) string {
	counts := map[string]int{}
	total := 0
	for _, s := range b.Suites {
		for _, tc := range s.Tests {
			counts[strings.ToUpper(tc.Result)]++
			total++
		}
	}
	if total == 0 {
		return ""
	}
	parts := make([]string, 0, len(counts))
	for _, r := range model.SortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s %d", r, counts[r]))
	}
	return fmt.Sprintf("%d (%s)", total, strings.Join(parts, ", "))
}
