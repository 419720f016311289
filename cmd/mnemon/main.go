// Mnemon: archetype-driven structured memory MCP server
//
// Mnemon compiles a YAML archetype into a set of MCP write tools, stores
// every invocation as a searchable memory record, and answers semantic
// and filtered queries over them.
//
// Usage:
//
//	mnemon serve    # Start MCP server (stdio transport)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mnemonserver "github.com/mnemon-mcp/mnemon/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("mnemon v%s\n", mnemonserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	s, cleanup, err := mnemonserver.New(ctx)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Mnemon v%s — archetype-driven memory MCP server

Usage:
  mnemon serve    Start the MCP server (stdio transport)

Configuration (environment):
  ARCHETYPE_PATH   Path to the YAML archetype (required)
  STORAGE_BACKEND  sqlite (default) or qdrant
  DATA_DIR         SQLite data directory (default: ~/.mnemon)
  QDRANT_URL       Qdrant base URL (default: http://localhost:6333)
  QDRANT_API_KEY   Qdrant API key, if any
  COLLECTION_NAME  Collection name (default: memories)
  EMBED_PROVIDER   local (default), ollama, or openai
  EMBED_MODEL      Embedding model name
  AGENT_ID         Identity stamped on stored records (default: default)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "mnemon": {
        "command": "mnemon",
        "args": ["serve"],
        "env": { "ARCHETYPE_PATH": "/path/to/archetype.yaml" }
      }
    }
  }
`, mnemonserver.Version)
}
