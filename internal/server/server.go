// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it loads configuration, compiles the
// archetype, opens the storage backend, and injects the concrete
// collaborators into the tool and prompt handlers. No business logic
// lives here — only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
	"github.com/mnemon-mcp/mnemon/internal/config"
	"github.com/mnemon-mcp/mnemon/internal/embed"
	"github.com/mnemon-mcp/mnemon/internal/prompts"
	"github.com/mnemon-mcp/mnemon/internal/query"
	"github.com/mnemon-mcp/mnemon/internal/record"
	"github.com/mnemon-mcp/mnemon/internal/session"
	"github.com/mnemon-mcp/mnemon/internal/store"
	"github.com/mnemon-mcp/mnemon/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server: one write tool per
// archetype tool plus the search tool. This is the single place where
// all dependencies are resolved.
//
// The returned cleanup function closes the storage backend and must be
// called on shutdown (typically via defer). It is always non-nil.
func New(ctx context.Context) (*server.MCPServer, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, noop, err
	}

	// The archetype determines the entire tool surface; a malformed
	// document aborts startup before any tool is exposed.
	reg, err := archetype.LoadFile(cfg.ArchetypePath)
	if err != nil {
		return nil, noop, err
	}

	embedder, err := embed.New(embed.Config{
		Provider: cfg.EmbedProvider,
		Model:    cfg.EmbedModel,
		BaseURL:  cfg.EmbedBaseURL,
		APIKey:   cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, noop, err
	}

	st, err := openStore(cfg, embedder.Dims())
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Printf("WARNING: store close: %v", err)
		}
	}
	if err := st.Init(ctx); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("initializing storage: %w", err)
	}

	tracker := session.NewTracker()
	builder := record.NewBuilder(record.Meta{
		AgentID:          cfg.AgentID,
		SchemaVersion:    cfg.SchemaVersion,
		ServerVersion:    Version,
		ArchetypeTitle:   reg.Title,
		ArchetypeVersion: reg.Version,
	})
	engine := query.NewEngine(st, embedder)

	// Sequencing state lives for exactly as long as its client session.
	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		tracker.End(cs.SessionID())
	})

	s := server.NewMCPServer(
		"mnemon",
		Version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions(serverInstructions(reg)),
	)

	// --- Register archetype write tools ---

	for _, def := range reg.Tools() {
		tool := tools.NewArchetypeTool(reg, def, tracker, builder, st, embedder)
		s.AddTool(tool.Definition(), tool.Handle)
	}

	// --- Register the search tool ---

	searchTool := tools.NewSearchTool(engine)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	// --- Register prompts ---

	primingPrompt := prompts.NewPrimingPrompt(reg)
	s.AddPrompt(primingPrompt.Definition(), primingPrompt.Handle)

	log.Printf("mnemon: archetype %q v%s loaded — %d tools, %s backend",
		reg.Title, reg.Version, len(reg.Tools()), cfg.StorageBackend)

	return s, cleanup, nil
}

// noop is the cleanup returned before a store has been opened.
func noop() {}

func openStore(cfg config.Config, dims int) (store.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendQdrant:
		return store.NewQdrant(store.QdrantConfig{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
			VectorSize: dims,
		}), nil
	default:
		return store.NewSQLite(store.SQLiteConfig{DataDir: cfg.DataDir})
	}
}

// serverInstructions summarizes the compiled archetype for the client
// model so it knows the memory tools exist without being prompted.
func serverInstructions(reg *archetype.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have structured, persistent memory provided by the %q archetype.\n\n", reg.Title)
	b.WriteString("Write tools (each stores one searchable memory record):\n")
	for _, def := range reg.Tools() {
		if def.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", def.Name)
		}
	}
	b.WriteString("\nRecall with search_memories: similarity search over past records, ")
	b.WriteString("optional metadata filters (session, tool, time range), ")
	b.WriteString("or direct lookup with search_type=by_memory_id.\n")
	b.WriteString("Records chain within a session via preceding_memory_id; ")
	b.WriteString("use graph detail to walk a reasoning chain.")
	return b.String()
}
