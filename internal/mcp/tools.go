package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ciquery/internal/filter"
	"ciquery/internal/query"
	"ciquery/internal/render"
	"ciquery/internal/sources"
)

func (s *Server) listTools() interface{} {
	filters := map[string]interface{}{}
	for _, a := range query.Arguments {
		filters[a.Name] = map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": fmt.Sprintf("%s (%s). An empty list requests the level without narrowing it.", a.Usage, a.Mode),
		}
	}

	return map[string]interface{}{
		"tools": []interface{}{
			map[string]interface{}{
				"name":        "list_sources",
				"description": "List the configured environments, systems and sources with their drivers, priorities and capabilities. Guidance: call this first to learn which environment and system names 'query' accepts.",
				"inputSchema": map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
			map[string]interface{}{
				"name":        "query",
				"description": "Query CI systems for tenants, projects, pipelines, jobs, variants, builds, tests and deployment details. Each system is answered by its best-ranked source, falling back to the next one on failure.",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"filters": map[string]interface{}{
							"type":                 "object",
							"properties":           filters,
							"additionalProperties": false,
						},
						"environments":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Restrict to these environments"},
						"systems":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Restrict to these systems"},
						"merge_sources": map[string]interface{}{"type": "boolean", "description": "Merge the answers of every capable source"},
						"format":        map[string]interface{}{"type": "string", "enum": []string{string(render.JSON), string(render.Text)}, "description": "Result format (default json)"},
					},
				},
			},
		},
	}
}

type queryParams struct {
	Filters      map[string]json.RawMessage `json:"filters"`
	Environments []string                   `json:"environments"`
	Systems      []string                   `json:"systems"`
	MergeSources bool                       `json:"merge_sources"`
	Format       string                     `json:"format"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, interface{}) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, map[string]interface{}{"code": -32602, "message": "Invalid params"}
	}

	var text string
	var err error

	switch call.Name {
	case "list_sources":
		text, err = s.handleListSources()
	case "query":
		var p queryParams
		if len(call.Arguments) > 0 {
			if err := json.Unmarshal(call.Arguments, &p); err != nil {
				return nil, map[string]interface{}{"code": -32602, "message": "Invalid arguments: " + err.Error()}
			}
		}
		text, err = s.handleQuery(ctx, p)
	default:
		return nil, map[string]interface{}{"code": -32601, "message": "Tool not found"}
	}

	if err != nil {
		return nil, map[string]interface{}{"code": -32000, "message": err.Error()}
	}

	return map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": text,
			},
		},
	}, nil
}

func (s *Server) handleListSources() (string, error) {
	entries, err := sources.Catalog(s.cfg)
	if err != nil {
		return "", err
	}
	return formatResult(entries), nil
}

func (s *Server) handleQuery(ctx context.Context, p queryParams) (string, error) {
	raw, err := filterValues(p.Filters)
	if err != nil {
		return "", err
	}
	args, err := query.ParseArgs(raw)
	if err != nil {
		return "", err
	}
	format := render.JSON
	if p.Format != "" {
		if format, err = render.ParseFormat(p.Format); err != nil {
			return "", err
		}
	}

	rep, err := s.runner.Run(ctx, query.Options{
		Args:         args,
		Environments: p.Environments,
		Systems:      p.Systems,
		MergeSources: p.MergeSources,
	})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := render.Write(&buf, format, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// filterValues accepts a list, a single scalar, true or null per filter.
// true and null stand for a bare filter; false omits it.
func filterValues(in map[string]json.RawMessage) (map[string][]string, error) {
	out := make(map[string][]string, len(in))
	for name, msg := range in {
		var v interface{}
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		switch val := v.(type) {
		case nil:
			out[name] = nil
		case bool:
			if val {
				out[name] = nil
			}
		case string:
			out[name] = []string{val}
		case float64:
			out[name] = []string{formatNumber(val)}
		case []interface{}:
			values := make([]string, 0, len(val))
			for _, item := range val {
				switch iv := item.(type) {
				case string:
					values = append(values, iv)
				case float64:
					values = append(values, formatNumber(iv))
				default:
					return nil, &filter.InvalidExpressionError{Filter: name, Expression: fmt.Sprint(item), Reason: "expected a string or a number"}
				}
			}
			out[name] = values
		default:
			return nil, &filter.InvalidExpressionError{Filter: name, Expression: string(msg), Reason: "expected a list of values"}
		}
	}
	return out, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatResult(data interface{}) string {
	out, _ := json.MarshalIndent(data, "", "  ")
	return string(out)
}
