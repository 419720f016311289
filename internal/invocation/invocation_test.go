package invocation_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
	"github.com/mnemon-mcp/mnemon/internal/invocation"
)

const testDoc = `
facets:
  Clarity:
    description: How clear the thought is.
    facet_examples: [clouded, hazy, translucent]
tools:
  Thought:
    description: Record a thought.
    parameters:
      Clarity: translucent
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
      related_thoughts: {type: list}
      is_conclusion: {type: bool}
      mood: {default: neutral}
      tags: {type: list, default: [seed]}
`

func thoughtDef(t *testing.T) *archetype.ToolDefinition {
	t.Helper()
	reg, err := archetype.Compile([]byte(testDoc))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	def, ok := reg.Tool("Thought")
	if !ok {
		t.Fatal("tool Thought missing")
	}
	return def
}

func TestValidate_AppliesDefaults(t *testing.T) {
	def := thoughtDef(t)

	inv, err := invocation.Validate(def, map[string]any{
		"thought_title":   "A",
		"thought_content": "B",
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if got := inv.Fields["Clarity"]; got != "translucent" {
		t.Errorf("Clarity = %v, want declared default", got)
	}
	if got := inv.Fields["mood"]; got != "neutral" {
		t.Errorf("mood = %v, want neutral", got)
	}
	if got := inv.Fields["is_conclusion"]; got != false {
		t.Errorf("is_conclusion = %v, want false", got)
	}
	if got := inv.Fields["related_thoughts"]; !reflect.DeepEqual(got, []string{}) {
		t.Errorf("related_thoughts = %#v, want empty list", got)
	}
	if inv.Title(def) != "A" || inv.Content(def) != "B" {
		t.Errorf("title/content = %q/%q", inv.Title(def), inv.Content(def))
	}
}

func TestValidate_MissingRequiredNamesField(t *testing.T) {
	def := thoughtDef(t)

	_, err := invocation.Validate(def, map[string]any{
		"thought_title": "A",
	})
	if err == nil {
		t.Fatal("Validate() succeeded, want missing-field rejection")
	}
	var verr *invocation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	if verr.Field != "thought_content" {
		t.Errorf("rejected field = %q, want thought_content", verr.Field)
	}
	if !strings.Contains(verr.Reason, "missing required") {
		t.Errorf("reason = %q", verr.Reason)
	}
}

func TestValidate_UnknownFieldRejected(t *testing.T) {
	def := thoughtDef(t)

	_, err := invocation.Validate(def, map[string]any{
		"thought_title":   "A",
		"thought_content": "B",
		"sneaky":          "x",
	})
	var verr *invocation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if verr.Field != "sneaky" || verr.Reason != "unknown field" {
		t.Errorf("rejection = %+v", verr)
	}
}

func TestValidate_TypeMismatches(t *testing.T) {
	def := thoughtDef(t)
	base := func() map[string]any {
		return map[string]any{"thought_title": "A", "thought_content": "B"}
	}

	tests := []struct {
		name  string
		field string
		value any
	}{
		{"scalar where list declared", "related_thoughts", "not-a-list"},
		{"number where text declared", "thought_title", 42.0},
		{"text where bool declared", "is_conclusion", "yes"},
		{"mixed list elements", "related_thoughts", []any{"ok", 3.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := base()
			payload[tt.field] = tt.value
			_, err := invocation.Validate(def, payload)
			var verr *invocation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("rejected field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestValidate_CoercesJSONList(t *testing.T) {
	def := thoughtDef(t)

	inv, err := invocation.Validate(def, map[string]any{
		"thought_title":    "A",
		"thought_content":  "B",
		"related_thoughts": []any{"one", "two"},
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got := inv.Fields["related_thoughts"]; !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("related_thoughts = %#v", got)
	}
}

func TestValidate_FacetValuesUnconstrained(t *testing.T) {
	def := thoughtDef(t)

	// "opalescent" is not in the facet examples; examples are guidance,
	// not an enum, so any text must pass.
	inv, err := invocation.Validate(def, map[string]any{
		"thought_title":   "A",
		"thought_content": "B",
		"Clarity":         "opalescent",
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if inv.Fields["Clarity"] != "opalescent" {
		t.Errorf("Clarity = %v", inv.Fields["Clarity"])
	}
}

func TestValidate_DefaultListNotAliased(t *testing.T) {
	def := thoughtDef(t)

	first, err := invocation.Validate(def, map[string]any{
		"thought_title": "A", "thought_content": "B",
	})
	if err != nil {
		t.Fatal(err)
	}
	first.Fields["tags"].([]string)[0] = "mutated"

	second, err := invocation.Validate(def, map[string]any{
		"thought_title": "A", "thought_content": "B",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Fields["tags"].([]string); !reflect.DeepEqual(got, []string{"seed"}) {
		t.Errorf("default list mutated across invocations: %v", got)
	}
}
