// Package invocation validates caller payloads against a compiled tool
// definition.
//
// Validation is pure: no I/O, no side effects. A payload either resolves
// to a complete Invocation — every declared field present with a value of
// its declared kind — or fails with a structured rejection the caller can
// act on.
package invocation

import (
	"fmt"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
)

// Invocation is a validated call against a tool. Fields holds every
// declared field keyed by name; values are string, []string, or bool
// according to the field's kind.
type Invocation struct {
	Tool   string
	Fields map[string]any
}

// Title returns the value of the tool's designated title field.
func (inv *Invocation) Title(def *archetype.ToolDefinition) string {
	s, _ := inv.Fields[def.TitleField].(string)
	return s
}

// Content returns the value of the tool's designated content field.
func (inv *Invocation) Content(def *archetype.ToolDefinition) string {
	s, _ := inv.Fields[def.ContentField].(string)
	return s
}

// ValidationError is a recoverable rejection of a caller payload. It names
// the offending field so the caller can self-correct and retry.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Tool, e.Field, e.Reason)
}

// Validate resolves an untyped payload against a tool definition.
//
// Per field: required and absent fails; present values are coerced to the
// declared kind or fail on mismatch; absent optional fields take their
// compiled default. Payload keys not declared on the tool are rejected.
// Facet-bound fields accept any text — facet examples are guidance, not an
// enum.
func Validate(def *archetype.ToolDefinition, payload map[string]any) (*Invocation, error) {
	for key := range payload {
		if _, ok := def.Field(key); !ok {
			return nil, &ValidationError{Tool: def.Name, Field: key, Reason: "unknown field"}
		}
	}

	fields := make(map[string]any, len(def.Fields))
	for _, spec := range def.Fields {
		raw, present := payload[spec.Name]
		if !present || raw == nil {
			if spec.Required {
				return nil, &ValidationError{Tool: def.Name, Field: spec.Name, Reason: "missing required field"}
			}
			fields[spec.Name] = defaultValue(spec)
			continue
		}
		v, err := coerce(spec.Kind, raw)
		if err != nil {
			return nil, &ValidationError{Tool: def.Name, Field: spec.Name, Reason: err.Error()}
		}
		fields[spec.Name] = v
	}

	return &Invocation{Tool: def.Name, Fields: fields}, nil
}

// coerce converts a payload value to the field kind. JSON decoding hands
// us string, bool, float64, and []any — anything else is a mismatch.
func coerce(kind archetype.Kind, raw any) (any, error) {
	switch kind {
	case archetype.KindText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
		return s, nil

	case archetype.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return b, nil

	case archetype.KindList:
		switch v := raw.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected list of text, got %T element", item)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("expected list of text, got %T", raw)
		}
	}
	return nil, fmt.Errorf("unsupported field kind %q", kind)
}

// defaultValue returns a copy of the compiled default so invocations never
// alias registry-owned slices.
func defaultValue(spec archetype.FieldSpec) any {
	if list, ok := spec.Default.([]string); ok {
		out := make([]string, len(list))
		copy(out, list)
		return out
	}
	return spec.Default
}
