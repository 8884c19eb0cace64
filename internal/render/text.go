package render

import (
	"fmt"
	"io"
	"strings"

	"ciquery/internal/filter"
	"ciquery/internal/model"
	"ciquery/internal/query"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#7A8C94")
	colorTitle   = lipgloss.Color("#20B9B4")
)

// styles are bound to the output's renderer, which drops colour when the
// writer is not a terminal.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(colorTitle),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		success: r.NewStyle().Foreground(colorSuccess),
		warning: r.NewStyle().Foreground(colorWarning),
		failure: r.NewStyle().Foreground(colorError),
	}
}

func (s styles) result(r string) string {
	switch strings.ToUpper(r) {
	case "SUCCESS", "PASSED", "FIXED":
		return s.success.Render(r)
	case "FAILURE", "FAILED", "REGRESSION", "ERROR", "TIMED_OUT", "NODE_FAILURE":
		return s.failure.Render(r)
	case "":
		return s.muted.Render("UNKNOWN")
	default:
		return s.warning.Render(r)
	}
}

type textWriter struct {
	b strings.Builder
	s styles
}

func (t *textWriter) line(depth int, format string, args ...any) {
	t.b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&t.b, format, args...)
	t.b.WriteByte('\n')
}

func writeText(w io.Writer, rep *query.Report) error {
	t := &textWriter{s: newStyles(w)}
	for _, env := range rep.Environments {
		t.line(0, "%s", t.s.title.Render(env.Name))
		for _, sys := range env.Systems {
			t.system(sys)
		}
	}
	_, err := io.WriteString(w, t.b.String())
	return err
}

func (t *textWriter) system(sys *query.SystemReport) {
	t.line(1, "%s %s", t.s.label.Render(sys.Name), t.s.muted.Render("("+sys.Type+")"))
	for _, r := range sys.Results {
		if r.Unsupported {
			t.line(2, "%s", t.s.warning.Render("No source supports "+string(r.Capability)))
		}
	}
	if sys.Graph.Empty() {
		t.line(2, "%s", t.s.muted.Render("No results found"))
		return
	}
	for _, name := range model.SortedKeys(sys.Graph.Tenants) {
		t.tenant(2, sys.Graph.Tenants[name])
	}
	for _, name := range model.SortedKeys(sys.Graph.Jobs) {
		t.job(2, sys.Graph.Jobs[name])
	}
}

func (t *textWriter) tenant(depth int, tn *model.Tenant) {
	t.line(depth, "%s %s", t.s.label.Render("Tenant:"), tn.Name)
	for _, name := range model.SortedKeys(tn.Projects) {
		p := tn.Projects[name]
		t.line(depth+1, "%s %s", t.s.label.Render("Project:"), p.Name)
		for _, pname := range model.SortedKeys(p.Pipelines) {
			pl := p.Pipelines[pname]
			t.line(depth+2, "%s %s", t.s.label.Render("Pipeline:"), pl.Name)
			for _, j := range pl.Jobs {
				t.line(depth+3, "%s %s", t.s.label.Render("Job:"), j)
			}
		}
	}
	for _, name := range model.SortedKeys(tn.Jobs) {
		t.job(depth+1, tn.Jobs[name])
	}
}

func (t *textWriter) job(depth int, j *model.Job) {
	t.line(depth, "%s %s", t.s.label.Render("Job:"), j.Name)
	if j.URL != "" {
		t.line(depth+1, "%s %s", t.s.muted.Render("URL:"), j.URL)
	}
	for _, v := range j.Variants {
		t.variant(depth+1, v)
	}
	for _, id := range buildIDs(j.Builds) {
		t.build(depth+1, j.Builds[id])
	}
	if j.Deployment != nil {
		t.deployment(depth+1, j.Deployment)
	}
}

func (t *textWriter) variant(depth int, v *model.Variant) {
	branches := "all branches"
	if len(v.Branches) > 0 {
		branches = strings.Join(v.Branches, ", ")
	}
	t.line(depth, "%s %s", t.s.label.Render("Variant:"), branches)
	if v.Parent != "" {
		t.line(depth+1, "Parent: %s", v.Parent)
	}
	if v.NodeSet != "" {
		t.line(depth+1, "Nodeset: %s", v.NodeSet)
	}
	if v.Source != "" {
		t.line(depth+1, "%s", t.s.muted.Render("Defined in "+v.Source))
	}
}

func (t *textWriter) build(depth int, b *model.Build) {
	extra := ""
	if b.Duration > 0 {
		extra = t.s.muted.Render(fmt.Sprintf(" (%ds)", b.Duration))
	}
	t.line(depth, "%s %s %s%s", t.s.label.Render("Build:"), b.ID, t.s.result(b.Result), extra)
	for _, sname := range model.SortedKeys(b.Suites) {
		suite := b.Suites[sname]
		for _, tname := range model.SortedKeys(suite.Tests) {
			tc := suite.Tests[tname]
			t.line(depth+1, "%s %s %s %s", t.s.label.Render("Test:"), tc.Name,
				t.s.result(tc.Result), t.s.muted.Render(fmt.Sprintf("%.2fs", tc.Duration)))
		}
	}
}

func (t *textWriter) deployment(depth int, d *model.Deployment) {
	t.line(depth, "%s", t.s.label.Render("Deployment:"))
	fields := []struct{ name, value string }{
		{"Release", d.Release},
		{"Infra type", d.InfraType},
		{"Topology", d.Topology},
		{"IP version", d.Network.IPVersion},
		{"Network backend", d.Network.NetworkBackend},
		{"ML2 driver", d.Network.ML2Driver},
		{"DVR", d.Network.DVR},
		{"Storage backend", d.Storage.Backend},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		value := f.value
		if value == filter.NotAvailable {
			value = t.s.muted.Render(value)
		}
		t.line(depth+1, "%s: %s", f.name, value)
	}
	if len(d.Nodes) > 0 {
		t.line(depth+1, "Nodes: %s", strings.Join(model.SortedKeys(d.Nodes), ", "))
	}
}
