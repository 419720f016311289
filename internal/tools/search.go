package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemon-mcp/mnemon/internal/query"
	"github.com/mnemon-mcp/mnemon/internal/store"
)

// SearchTool handles the search_memories MCP tool.
type SearchTool struct {
	engine *query.Engine
}

// NewSearchTool creates a SearchTool over the query engine.
func NewSearchTool(engine *query.Engine) *SearchTool {
	return &SearchTool{engine: engine}
}

// Definition returns the MCP tool definition for search_memories.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_memories",
		mcp.WithDescription(
			"Search stored memories. Three modes: 'basic' ranks memories by similarity to the query text, "+
				"'filtered' additionally restricts candidates by metadata filters, "+
				"'by_memory_id' fetches one memory directly by its id.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text, or a memory id when search_type is by_memory_id"),
		),
		mcp.WithString("search_type",
			mcp.Description("basic (default), filtered, or by_memory_id"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max results (default: %d, max: %d)", query.DefaultLimit, query.MaxLimit)),
		),
		mcp.WithArray("filters",
			mcp.Description(
				"Metadata filters for search_type=filtered, each {field, operator, value}. "+
					"Fields: session_id, tool, agent_id, title, sequence_order, memory_id, timestamp, "+
					"preceding_memory_id, archetype_title, archetype_version, schema_version. "+
					"Operators: is, is_not, before, after, between (value: [from, to]), contains, any_of (value: list). "+
					"All filters are ANDed.",
			),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("detail",
			mcp.Description("Result shape: compact, summary (default), graph, or full"),
		),
		mcp.WithNumber("score_threshold",
			mcp.Description(fmt.Sprintf("Minimum similarity score in [0.0, 1.0]; 0.0 disables (default: %v)", query.DefaultThreshold)),
		),
	)
}

// Handle processes the search_memories tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := req.GetString("query", "")
	if q == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	filters, err := filtersArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.engine.Search(ctx, query.Request{
		Query:          q,
		SearchType:     req.GetString("search_type", ""),
		Limit:          intArg(req, "limit", 0),
		Filters:        filters,
		Detail:         req.GetString("detail", ""),
		ScoreThreshold: floatArg(req, "score_threshold", query.DefaultThreshold),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			out, _ := json.Marshal(map[string]any{"found": false, "memory_id": q})
			return mcp.NewToolResultText(string(out)), nil
		case errors.Is(err, store.ErrUnavailable):
			return mcp.NewToolResultError("storage unavailable — try again"), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// filtersArg decodes the filters argument. It arrives either as a JSON
// array from the protocol layer or as a JSON string from clients that
// stringify nested arguments.
func filtersArg(req mcp.CallToolRequest) ([]query.FilterCriterion, error) {
	raw, ok := req.GetArguments()["filters"]
	if !ok || raw == nil {
		return nil, nil
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("'filters' is not encodable: %v", err)
		}
	}

	var filters []query.FilterCriterion
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("'filters' must be a JSON array of {field, operator, value}: %v", err)
	}
	return filters, nil
}
