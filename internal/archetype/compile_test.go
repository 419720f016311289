package archetype_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
)

const validDoc = `
title: Cognition
version: 1.0
priming_prompt: |
  Think out loud.
facets:
  Clarity:
    description: How clear the thought is.
    facet_examples: [clouded, hazy, translucent]
  Weight:
    description: How much the thought matters.
    facet_examples: [feather, anvil]
tools:
  Thought:
    description: Record a thought.
    parameters:
      Clarity: translucent
      Weight:
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
      related_thoughts: {type: list}
      is_conclusion: {type: bool}
  Reflection:
    description: Reflect on an earlier thought.
    frames:
      reflection_title: {required: true}
      reflection_content: {required: true}
      subject_id:
`

// compileValid compiles the shared valid document, failing the test on error.
func compileValid(t *testing.T) *archetype.Registry {
	t.Helper()
	reg, err := archetype.Compile([]byte(validDoc))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return reg
}

func TestCompile_RegistersFacets(t *testing.T) {
	reg := compileValid(t)

	clarity, ok := reg.Facet("Clarity")
	if !ok {
		t.Fatal("facet Clarity not registered")
	}
	if clarity.Description == "" {
		t.Error("facet description lost")
	}
	want := []string{"clouded", "hazy", "translucent"}
	if !reflect.DeepEqual(clarity.Examples, want) {
		t.Errorf("examples = %v, want %v", clarity.Examples, want)
	}
	if names := reg.FacetNames(); !reflect.DeepEqual(names, []string{"Clarity", "Weight"}) {
		t.Errorf("facet order = %v", names)
	}
}

func TestCompile_ArchetypeIdentity(t *testing.T) {
	reg := compileValid(t)

	if reg.Title != "Cognition" {
		t.Errorf("Title = %q", reg.Title)
	}
	if reg.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0 (numeric scalar preserved verbatim)", reg.Version)
	}
	if !strings.Contains(reg.PrimingPrompt, "Think out loud") {
		t.Errorf("PrimingPrompt = %q", reg.PrimingPrompt)
	}
}

func TestCompile_ToolFields(t *testing.T) {
	reg := compileValid(t)

	def, ok := reg.Tool("Thought")
	if !ok {
		t.Fatal("tool Thought not registered")
	}
	if def.TitleField != "thought_title" || def.ContentField != "thought_content" {
		t.Errorf("designated fields = %q/%q", def.TitleField, def.ContentField)
	}

	clarity, ok := def.Field("Clarity")
	if !ok {
		t.Fatal("Clarity field missing")
	}
	if clarity.Required {
		t.Error("defaulted parameter should be optional")
	}
	if clarity.Default != "translucent" {
		t.Errorf("Clarity default = %v", clarity.Default)
	}
	if clarity.Facet != "Clarity" {
		t.Errorf("Clarity facet ref = %q", clarity.Facet)
	}

	weight, _ := def.Field("Weight")
	if weight.Required {
		t.Error("bare-bound parameter should be optional")
	}
	if weight.Default != "" {
		t.Errorf("bare-bound parameter default = %v, want empty sentinel", weight.Default)
	}

	related, _ := def.Field("related_thoughts")
	if related.Kind != archetype.KindList {
		t.Errorf("related_thoughts kind = %v", related.Kind)
	}
	if !reflect.DeepEqual(related.Default, []string{}) {
		t.Errorf("list default = %#v, want empty slice", related.Default)
	}

	conclusion, _ := def.Field("is_conclusion")
	if conclusion.Kind != archetype.KindBool {
		t.Errorf("is_conclusion kind = %v", conclusion.Kind)
	}
	if conclusion.Default != false {
		t.Errorf("bool default = %v", conclusion.Default)
	}
}

func TestCompile_BareParameterBindingIsOptional(t *testing.T) {
	// `Confidence:` with no value binds the facet without presetting it.
	// The caller may omit the field entirely; it resolves to the empty
	// sentinel, never to a missing-field rejection.
	doc := `
facets:
  Confidence:
    facet_examples: [tentative, certain]
tools:
  Decision:
    parameters:
      Confidence:
    frames:
      decision_title: {required: true}
      decision_content: {required: true}
`
	reg, err := archetype.Compile([]byte(doc))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	def, _ := reg.Tool("Decision")
	confidence, ok := def.Field("Confidence")
	if !ok {
		t.Fatal("Confidence field missing")
	}
	if confidence.Required {
		t.Error("bare facet binding compiled as required")
	}
	if confidence.Default != "" {
		t.Errorf("Default = %v, want empty sentinel", confidence.Default)
	}
}

func TestCompile_BareFrameIsOptionalText(t *testing.T) {
	reg := compileValid(t)
	def, _ := reg.Tool("Reflection")

	subject, ok := def.Field("subject_id")
	if !ok {
		t.Fatal("subject_id missing")
	}
	if subject.Kind != archetype.KindText || subject.Required {
		t.Errorf("bare frame = %+v, want optional text", subject)
	}
	if subject.Default != "" {
		t.Errorf("bare frame default = %v, want empty string", subject.Default)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	a := compileValid(t)
	b := compileValid(t)

	toolsA, toolsB := a.Tools(), b.Tools()
	if len(toolsA) != len(toolsB) {
		t.Fatalf("tool counts differ: %d vs %d", len(toolsA), len(toolsB))
	}
	for i := range toolsA {
		if toolsA[i].Name != toolsB[i].Name {
			t.Errorf("tool order differs at %d: %q vs %q", i, toolsA[i].Name, toolsB[i].Name)
		}
		if !reflect.DeepEqual(toolsA[i].Fields, toolsB[i].Fields) {
			t.Errorf("tool %q fields differ between compilations", toolsA[i].Name)
		}
	}
}

// Compile-time rejections. Each document is minimally broken in one way.
func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "unknown facet reference",
			doc: `
tools:
  Thought:
    parameters:
      Clarity:
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
`,
			wantErr: "unknown facet",
		},
		{
			name: "missing title field",
			doc: `
tools:
  Thought:
    frames:
      thought_content: {required: true}
`,
			wantErr: "thought_title",
		},
		{
			name: "missing content field",
			doc: `
tools:
  Thought:
    frames:
      thought_title: {required: true}
`,
			wantErr: "thought_content",
		},
		{
			name: "multi-token facet example",
			doc: `
facets:
  Clarity:
    facet_examples: ["very clouded"]
tools:
  Thought:
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
`,
			wantErr: "single token",
		},
		{
			name: "malformed field type",
			doc: `
tools:
  Thought:
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
      extras: {type: matrix}
`,
			wantErr: "unknown field type",
		},
		{
			name: "required frame with default",
			doc: `
tools:
  Thought:
    frames:
      thought_title: {required: true}
      thought_content: {required: true}
      note: {required: true, default: something}
`,
			wantErr: "cannot declare a default",
		},
		{
			name: "list-typed title field",
			doc: `
tools:
  Thought:
    frames:
      thought_title: {type: list, required: true}
      thought_content: {required: true}
`,
			wantErr: "must be text",
		},
		{
			name:    "no tools",
			doc:     "facets: {}\ntools: {}\n",
			wantErr: "no tools",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := archetype.Compile([]byte(tt.doc))
			if err == nil {
				t.Fatal("Compile() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompile_TitleContentAlwaysRequired(t *testing.T) {
	// Even when declared without required:true, the designated fields
	// compile as required with no default.
	doc := `
tools:
  Note:
    frames:
      note_title:
      note_content:
`
	reg, err := archetype.Compile([]byte(doc))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	def, _ := reg.Tool("Note")
	title, _ := def.Field("note_title")
	if !title.Required || title.Default != nil {
		t.Errorf("title spec = %+v, want required with no default", title)
	}
}
