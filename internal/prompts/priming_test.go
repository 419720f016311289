package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
)

const baseDoc = `
title: Cognitive Archetype
tools:
  Thought:
    description: Record a reasoning step
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
  Reflection:
    frames:
      reflection_title: {required: true}
      reflection_content: {required: true}
`

func compileDoc(t *testing.T, doc string) *archetype.Registry {
	t.Helper()
	reg, err := archetype.Compile([]byte(doc))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return reg
}

func promptText(t *testing.T, p *PrimingPrompt) string {
	t.Helper()
	result, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(result.Messages))
	}
	tc, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", result.Messages[0].Content)
	}
	return tc.Text
}

func TestPriming_UsesArchetypeText(t *testing.T) {
	doc := "priming_prompt: |\n  Think in structured thoughts before acting.\n" + baseDoc
	reg := compileDoc(t, doc)

	text := promptText(t, NewPrimingPrompt(reg))
	if !strings.Contains(text, "Think in structured thoughts") {
		t.Errorf("prompt %q should carry the archetype's priming text", text)
	}
}

func TestPriming_GeneratedFallback(t *testing.T) {
	reg := compileDoc(t, baseDoc)

	text := promptText(t, NewPrimingPrompt(reg))
	for _, want := range []string{"Thought", "Reflection", "search_memories", "Cognitive Archetype"} {
		if !strings.Contains(text, want) {
			t.Errorf("generated prompt missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "Record a reasoning step") {
		t.Error("generated prompt should carry tool descriptions")
	}
}
