package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"ciquery/internal/source"
	"ciquery/internal/sources"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteSources renders the source catalog as a table or JSON.
func WriteSources(w io.Writer, f Format, entries []sources.Entry) error {
	if f == JSON {
		return writeJSON(w, entries)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Environment", "System", "Type", "Source", "Driver", "Enabled", "Priority", "Capabilities"})
	for _, e := range entries {
		enabled := "yes"
		if !e.Enabled {
			enabled = "no"
		}
		t.AppendRow(table.Row{e.Environment, e.System, e.SystemType, e.Name, e.Driver, enabled, e.Priority, costs(e.Capabilities)})
	}
	t.Render()
	return nil
}

// costs lists capabilities with their cost tables, one per line:
// "get_builds 2 (build_status +2, builds +1)".
func costs(caps source.Capabilities) string {
	lines := make([]string, 0, len(caps))
	for _, c := range caps.Names() {
		cost := caps[c]
		line := fmt.Sprintf("%s %d", c, cost.Base)
		if len(cost.PerFilter) > 0 {
			filters := make([]string, 0, len(cost.PerFilter))
			for name := range cost.PerFilter {
				filters = append(filters, name)
			}
			sort.Strings(filters)
			for i, name := range filters {
				filters[i] = fmt.Sprintf("%s %+d", name, cost.PerFilter[name])
			}
			line += " (" + strings.Join(filters, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
