package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/staticql/staticql/internal/pager"
	"github.com/staticql/staticql/internal/query"
)

// QueryEngine is the subset of the root staticql.Engine the MCP handler
// needs: a single fluent query entry point per source.
type QueryEngine interface {
	From(source string) *query.Builder
}

// QueryHandler exposes the query engine as a single MCP tool, letting an
// agent harness run filter/join/orderBy/cursor/pageSize queries against
// the indexed sources without a database.
type QueryHandler struct {
	engine QueryEngine
}

// NewQueryHandler creates a QueryHandler bound to engine.
func NewQueryHandler(engine QueryEngine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// ListTools advertises the single "query" tool.
func (h *QueryHandler) ListTools() []Tool {
	return []Tool{
		{
			Name: "query",
			Description: "Query an indexed static-content source with optional " +
				"filters, joins, ordering, and pagination.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"source": {
						Type:        "string",
						Description: "Name of the configured source to query",
					},
					"slug": {
						Type:        "string",
						Description: "If set, fetch this one record by slug instead of running a filtered query",
					},
					"where": {
						Type:        "string",
						Description: `JSON array of {"field","op","value"} or {"field","op":"in","values":[...]}`,
					},
					"join": {
						Type:        "string",
						Description: "JSON array of relation keys to materialize alongside each record",
					},
					"orderBy": {
						Type:        "string",
						Description: "Field to sort by (default slug)",
					},
					"descending": {
						Type:        "string",
						Description: `"true" to sort descending`,
					},
					"cursor": {
						Type:        "string",
						Description: "Opaque page cursor from a previous query's pageInfo",
					},
					"direction": {
						Type:        "string",
						Description: `"after" or "before"`,
						Enum:        []string{"after", "before"},
					},
					"pageSize": {
						Type:        "string",
						Description: "Page size (default 20)",
					},
				},
				Required: []string{"source"},
			},
		},
	}
}

// CallTool runs the "query" tool and renders the page as JSON text content.
func (h *QueryHandler) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error) {
	if name != "query" {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	source, _ := args["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("query tool requires a non-empty \"source\"")
	}

	b := h.engine.From(source)

	if slug, ok := args["slug"].(string); ok && slug != "" {
		rec, found, err := b.Find(ctx, slug)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(map[string]interface{}{"found": found, "data": rec})
		if err != nil {
			return nil, err
		}
		return &CallToolResult{Content: []Content{{Type: "text", Text: string(raw)}}}, nil
	}

	if whereRaw, ok := args["where"].(string); ok && whereRaw != "" {
		var filters []rawFilter
		if err := json.Unmarshal([]byte(whereRaw), &filters); err != nil {
			return nil, fmt.Errorf("invalid \"where\": %w", err)
		}
		for _, f := range filters {
			if f.Op == "in" {
				b = b.WhereIn(f.Field, f.Values)
			} else {
				b = b.Where(f.Field, query.Op(f.Op), f.Value)
			}
		}
	}

	if joinRaw, ok := args["join"].(string); ok && joinRaw != "" {
		var joins []string
		if err := json.Unmarshal([]byte(joinRaw), &joins); err != nil {
			return nil, fmt.Errorf("invalid \"join\": %w", err)
		}
		for _, j := range joins {
			b = b.Join(j)
		}
	}

	if orderBy, ok := args["orderBy"].(string); ok && orderBy != "" {
		b = b.OrderBy(orderBy, args["descending"] == "true")
	}

	direction := pager.After
	if d, ok := args["direction"].(string); ok && d == "before" {
		direction = pager.Before
	}
	cursor, _ := args["cursor"].(string)
	b = b.Cursor(cursor, direction)

	if sizeRaw, ok := args["pageSize"].(string); ok && sizeRaw != "" {
		var size int
		if _, err := fmt.Sscanf(sizeRaw, "%d", &size); err == nil {
			b = b.PageSize(size)
		}
	}

	result, err := b.Exec(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(map[string]interface{}{
		"data":     result.Data,
		"pageInfo": result.PageInfo,
	})
	if err != nil {
		return nil, err
	}

	return &CallToolResult{Content: []Content{{Type: "text", Text: string(raw)}}}, nil
}

// ListResources reports no resources: every source is reachable through
// the query tool instead of a static resource listing.
func (h *QueryHandler) ListResources() []Resource {
	return []Resource{}
}

// ReadResource is unsupported; resources are not exposed by this handler.
func (h *QueryHandler) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	return nil, fmt.Errorf("resource %q not supported", uri)
}

type rawFilter struct {
	Field  string   `json:"field"`
	Op     string   `json:"op"`
	Value  string   `json:"value"`
	Values []string `json:"values"`
}
