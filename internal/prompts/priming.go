// Package prompts implements the MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands). The
// priming prompt orients a model at the start of a conversation: which
// memory tools the loaded archetype provides and how to use them.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
)

// PrimingPrompt handles the prime_memory MCP prompt. Archetype authors
// may ship their own priming text; otherwise one is generated from the
// compiled tools.
type PrimingPrompt struct {
	reg *archetype.Registry
}

// NewPrimingPrompt creates a PrimingPrompt over the compiled archetype.
func NewPrimingPrompt(reg *archetype.Registry) *PrimingPrompt {
	return &PrimingPrompt{reg: reg}
}

// Definition returns the MCP prompt definition for registration.
func (p *PrimingPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("prime_memory",
		mcp.WithPromptDescription(
			"Orient the model to the loaded memory archetype: "+
				"which structured memory tools exist and when to use them.",
		),
	)
}

// Handle processes the prime_memory prompt request.
func (p *PrimingPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := p.reg.PrimingPrompt
	if text == "" {
		text = generatedPriming(p.reg)
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Memory priming for archetype %q", p.reg.Title),
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}

func generatedPriming(reg *archetype.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have structured memory from the %q archetype.\n\n", reg.Title)
	b.WriteString("Use these tools to record your thinking as you work:\n")
	for _, def := range reg.Tools() {
		desc := def.Description
		if desc == "" {
			desc = "record a " + strings.ToLower(def.Name)
		}
		fmt.Fprintf(&b, "- `%s` — %s\n", def.Name, desc)
	}
	b.WriteString("\nUse `search_memories` to recall earlier records: " +
		"similarity search by default, metadata filters for precision, " +
		"or by_memory_id to follow a preceding_memory_id chain.")
	return b.String()
}
