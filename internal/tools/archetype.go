// Package tools provides the MCP tool handlers: one dynamically-built
// write tool per compiled archetype tool, plus the search tool.
//
// Each handler follows the same pattern:
//   - A struct with dependencies injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
	"github.com/mnemon-mcp/mnemon/internal/embed"
	"github.com/mnemon-mcp/mnemon/internal/invocation"
	"github.com/mnemon-mcp/mnemon/internal/record"
	"github.com/mnemon-mcp/mnemon/internal/session"
	"github.com/mnemon-mcp/mnemon/internal/store"
)

// ArchetypeTool is one write tool materialized from a compiled tool
// definition. Its MCP schema mirrors the definition's fields, so the
// archetype document fully determines the tool surface.
type ArchetypeTool struct {
	reg      *archetype.Registry
	def      *archetype.ToolDefinition
	tracker  *session.Tracker
	builder  *record.Builder
	store    store.Store
	embedder embed.Embedder
}

// NewArchetypeTool creates the write tool for one compiled definition.
func NewArchetypeTool(
	reg *archetype.Registry,
	def *archetype.ToolDefinition,
	tracker *session.Tracker,
	builder *record.Builder,
	st store.Store,
	embedder embed.Embedder,
) *ArchetypeTool {
	return &ArchetypeTool{
		reg:      reg,
		def:      def,
		tracker:  tracker,
		builder:  builder,
		store:    st,
		embedder: embedder,
	}
}

// Definition builds the MCP tool schema from the compiled field specs.
func (t *ArchetypeTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.def.Description),
	}
	for _, spec := range t.def.Fields {
		opts = append(opts, fieldOption(t.reg, spec))
	}
	return mcp.NewTool(t.def.Name, opts...)
}

func fieldOption(reg *archetype.Registry, spec archetype.FieldSpec) mcp.ToolOption {
	props := []mcp.PropertyOption{
		mcp.Description(fieldDescription(reg, spec)),
	}
	if spec.Required {
		props = append(props, mcp.Required())
	}
	switch spec.Kind {
	case archetype.KindList:
		props = append(props, mcp.Items(map[string]any{"type": "string"}))
		return mcp.WithArray(spec.Name, props...)
	case archetype.KindBool:
		return mcp.WithBoolean(spec.Name, props...)
	default:
		return mcp.WithString(spec.Name, props...)
	}
}

// fieldDescription surfaces facet guidance to the calling model: the
// facet's description and example values, which are suggestions rather
// than an enforced enum.
func fieldDescription(reg *archetype.Registry, spec archetype.FieldSpec) string {
	if spec.Facet == "" {
		return ""
	}
	facet, ok := reg.Facet(spec.Facet)
	if !ok {
		return ""
	}
	desc := facet.Description
	if len(facet.Examples) > 0 {
		if desc != "" {
			desc += " "
		}
		desc += fmt.Sprintf("(e.g. %s)", strings.Join(facet.Examples, ", "))
	}
	return desc
}

// Handle validates the payload, assembles a record, persists it, and
// only then commits the session lease. Any failure before the durable
// write aborts the lease so the sequence position is never consumed.
func (t *ArchetypeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inv, err := invocation.Validate(t.def, req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lease := t.tracker.Begin(sessionID(ctx))
	// Abort is a no-op after Commit; deferring it releases the session
	// even when a collaborator panics mid-write.
	defer lease.Abort()
	rec := t.builder.Build(t.def, inv, lease)

	vector, err := t.embedder.Embed(ctx, rec.Content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("embedding failed: %v", err)), nil
	}

	if err := t.store.Upsert(ctx, rec, vector); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return mcp.NewToolResultError("storage unavailable, memory not saved — try again"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("storing memory failed: %v", err)), nil
	}
	lease.Commit(rec.ID)

	out, _ := json.Marshal(map[string]string{
		"stored": t.def.Name,
		"id":     rec.ID,
	})
	return mcp.NewToolResultText(string(out)), nil
}

// sessionID resolves the logical session for sequencing. Each connected
// MCP client session sequences independently; requests without one (eg
// direct library use) share a default session.
func sessionID(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		if id := cs.SessionID(); id != "" {
			return id
		}
	}
	return "default"
}
