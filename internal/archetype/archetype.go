// Package archetype compiles a declarative YAML archetype document into the
// immutable tool registry the server exposes over MCP.
//
// An archetype bundles two sections: facets (named qualitative dimensions
// with example values) and tools (invocable operations with a structured
// field schema). Compilation happens once at startup and either yields a
// fully valid Registry or fails — a broken archetype never exposes a
// partial tool set.
package archetype

import "fmt"

// Kind is the value kind of a tool field.
type Kind string

// Field value kinds.
const (
	KindText Kind = "text"
	KindList Kind = "list"
	KindBool Kind = "bool"
)

// Facet is a named qualitative axis with illustrative example values.
// Examples are guidance for the calling model, not an enforced enum:
// invocations may supply any text for a facet-bound field.
type Facet struct {
	Name        string
	Description string
	Examples    []string
}

// FieldSpec describes one structured slot inside a tool.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	// Default is the concrete value substituted when an optional field is
	// absent from a payload: string for text, []string for list, bool for
	// bool. Always nil for required fields.
	Default any
	// Facet is the name of the referenced facet, or "" for plain fields.
	Facet string
}

// ToolDefinition is one compiled, invocable operation. Immutable after
// compilation; safe for unsynchronized concurrent reads.
type ToolDefinition struct {
	Name        string
	Description string
	// Fields preserves the declaration order of the document:
	// facet-bound parameters first, then frames.
	Fields []FieldSpec

	// TitleField and ContentField name the two designated fields every
	// tool must expose: <lowertool>_title and <lowertool>_content.
	TitleField   string
	ContentField string

	index map[string]int
}

// Field returns the spec for a named field and whether it exists.
func (d *ToolDefinition) Field(name string) (FieldSpec, bool) {
	i, ok := d.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return d.Fields[i], true
}

// Registry holds the compiled archetype: its identity, the facet pool,
// and every tool definition. Built once at startup, read-only afterwards.
type Registry struct {
	Title         string
	Version       string
	PrimingPrompt string

	facets     map[string]Facet
	facetOrder []string
	tools      map[string]*ToolDefinition
	toolOrder  []string
}

// Facet returns a registered facet by name.
func (r *Registry) Facet(name string) (Facet, bool) {
	f, ok := r.facets[name]
	return f, ok
}

// FacetNames returns facet names in document order.
func (r *Registry) FacetNames() []string {
	return append([]string(nil), r.facetOrder...)
}

// Tool returns a compiled tool definition by name.
func (r *Registry) Tool(name string) (*ToolDefinition, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Tools returns all tool definitions in document order.
func (r *Registry) Tools() []*ToolDefinition {
	out := make([]*ToolDefinition, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name])
	}
	return out
}

// zeroDefault returns the empty sentinel for an optional field kind.
func zeroDefault(k Kind) any {
	switch k {
	case KindList:
		return []string{}
	case KindBool:
		return false
	default:
		return ""
	}
}

// parseKind maps a declared frame type to a field kind. The empty string
// means text, matching the document shorthand of omitting the type.
func parseKind(s string) (Kind, error) {
	switch s {
	case "", "str", "string", "text":
		return KindText, nil
	case "list", "List", "array", "List[str]":
		return KindList, nil
	case "bool", "Bool", "boolean", "Boolean":
		return KindBool, nil
	default:
		return "", fmt.Errorf("unknown field type %q", s)
	}
}
