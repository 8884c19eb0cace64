// Package render formats query reports for the terminal and for machines.
package render

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"ciquery/internal/model"
	"ciquery/internal/query"
)

// Format names an output format.
type Format string

const (
	Text  Format = "text"
	Table Format = "table"
	JSON  Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{Text, Table, JSON}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !slices.Contains(Formats, f) {
		return "", fmt.Errorf("unknown output format %q (expected one of %v)", s, Formats)
	}
	return f, nil
}

// Write renders rep to w.
func Write(w io.Writer, f Format, rep *query.Report) error {
	switch f {
	case JSON:
		return writeJSON(w, rep)
	case Table:
		return writeTable(w, rep)
	case Text, "":
		return writeText(w, rep)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

// buildIDs orders build ids numerically, oldest first. Non-numeric ids
// (Zuul uuids) follow in lexical order.
func buildIDs(builds map[string]*model.Build) []string {
	ids := model.SortedKeys(builds)
	slices.SortStableFunc(ids, func(a, b string) int {
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		switch {
		case errA == nil && errB == nil:
			return na - nb
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return 0
	})
	return ids
}
