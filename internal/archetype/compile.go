package archetype

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the top-level YAML shape. Facets and tools are kept as raw
// nodes so compilation can preserve declaration order and report precise
// errors; yaml.v3 map decoding would lose both.
type document struct {
	Title         string    `yaml:"title"`
	Version       yaml.Node `yaml:"version"`
	PrimingPrompt string    `yaml:"priming_prompt"`
	Facets        yaml.Node `yaml:"facets"`
	Tools         yaml.Node `yaml:"tools"`
}

type facetDoc struct {
	Description string   `yaml:"description"`
	Examples    []string `yaml:"facet_examples"`
}

type toolDoc struct {
	Description string    `yaml:"description"`
	Parameters  yaml.Node `yaml:"parameters"`
	Frames      yaml.Node `yaml:"frames"`
}

type frameDoc struct {
	Type     string    `yaml:"type"`
	Required bool      `yaml:"required"`
	Default  yaml.Node `yaml:"default"`
}

// LoadFile reads and compiles an archetype document from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archetype: %w", err)
	}
	reg, err := Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compiling archetype %s: %w", path, err)
	}
	return reg, nil
}

// Compile parses and validates an archetype document. It returns a fully
// valid Registry or an error — never a partially compiled one. All
// structural rules are enforced here so invocation-time code can trust
// every ToolDefinition unconditionally.
func Compile(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	reg := &Registry{
		Title:         doc.Title,
		Version:       scalarValue(doc.Version),
		PrimingPrompt: doc.PrimingPrompt,
		facets:        make(map[string]Facet),
		tools:         make(map[string]*ToolDefinition),
	}

	if err := compileFacets(reg, &doc.Facets); err != nil {
		return nil, err
	}
	if err := compileTools(reg, &doc.Tools); err != nil {
		return nil, err
	}
	if len(reg.tools) == 0 {
		return nil, fmt.Errorf("archetype declares no tools")
	}
	return reg, nil
}

func compileFacets(reg *Registry, node *yaml.Node) error {
	return eachMappingEntry(node, "facets", func(name string, value *yaml.Node) error {
		if _, dup := reg.facets[name]; dup {
			return fmt.Errorf("duplicate facet %q", name)
		}
		var fd facetDoc
		if err := value.Decode(&fd); err != nil {
			return fmt.Errorf("facet %q: %w", name, err)
		}
		for _, ex := range fd.Examples {
			if len(strings.Fields(ex)) != 1 {
				return fmt.Errorf("facet %q: example %q must be a single token", name, ex)
			}
		}
		reg.facets[name] = Facet{Name: name, Description: fd.Description, Examples: fd.Examples}
		reg.facetOrder = append(reg.facetOrder, name)
		return nil
	})
}

func compileTools(reg *Registry, node *yaml.Node) error {
	return eachMappingEntry(node, "tools", func(name string, value *yaml.Node) error {
		if _, dup := reg.tools[name]; dup {
			return fmt.Errorf("duplicate tool %q", name)
		}
		def, err := compileTool(reg, name, value)
		if err != nil {
			return err
		}
		reg.tools[name] = def
		reg.toolOrder = append(reg.toolOrder, name)
		return nil
	})
}

func compileTool(reg *Registry, name string, node *yaml.Node) (*ToolDefinition, error) {
	var td toolDoc
	if err := node.Decode(&td); err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	def := &ToolDefinition{
		Name:        name,
		Description: td.Description,
		index:       make(map[string]int),
	}

	addField := func(f FieldSpec) error {
		if _, dup := def.index[f.Name]; dup {
			return fmt.Errorf("tool %q: duplicate field %q", name, f.Name)
		}
		def.index[f.Name] = len(def.Fields)
		def.Fields = append(def.Fields, f)
		return nil
	}

	// Facet-bound parameters are always optional: a scalar binding is the
	// preset value, a bare binding falls back to the empty sentinel.
	err := eachMappingEntry(&td.Parameters, fmt.Sprintf("tool %q parameters", name), func(pname string, value *yaml.Node) error {
		if _, ok := reg.facets[pname]; !ok {
			return fmt.Errorf("tool %q: parameter %q references unknown facet", name, pname)
		}
		f := FieldSpec{Name: pname, Kind: KindText, Facet: pname}
		if isNull(value) {
			f.Default = zeroDefault(KindText)
		} else {
			f.Default = scalarValue(*value)
		}
		return addField(f)
	})
	if err != nil {
		return nil, err
	}

	err = eachMappingEntry(&td.Frames, fmt.Sprintf("tool %q frames", name), func(fname string, value *yaml.Node) error {
		f, ferr := compileFrame(name, fname, value)
		if ferr != nil {
			return ferr
		}
		return addField(f)
	})
	if err != nil {
		return nil, err
	}

	if err := resolveDesignatedFields(def); err != nil {
		return nil, err
	}
	return def, nil
}

func compileFrame(tool, name string, node *yaml.Node) (FieldSpec, error) {
	f := FieldSpec{Name: name, Kind: KindText}
	if isNull(node) {
		// Bare frame: optional text with the empty sentinel.
		f.Default = zeroDefault(KindText)
		return f, nil
	}

	var fd frameDoc
	if err := node.Decode(&fd); err != nil {
		return FieldSpec{}, fmt.Errorf("tool %q: frame %q: %w", tool, name, err)
	}
	kind, err := parseKind(fd.Type)
	if err != nil {
		return FieldSpec{}, fmt.Errorf("tool %q: frame %q: %w", tool, name, err)
	}
	f.Kind = kind
	f.Required = fd.Required

	if !isNull(&fd.Default) {
		if f.Required {
			return FieldSpec{}, fmt.Errorf("tool %q: frame %q is required and cannot declare a default", tool, name)
		}
		dv, derr := decodeDefault(kind, fd.Default)
		if derr != nil {
			return FieldSpec{}, fmt.Errorf("tool %q: frame %q default: %w", tool, name, derr)
		}
		f.Default = dv
	} else if !f.Required {
		f.Default = zeroDefault(kind)
	}
	return f, nil
}

// resolveDesignatedFields verifies the naming convention: exactly one
// <lowertool>_title field and one <lowertool>_content field, both text.
// They are the record's title and embedded content, so they are always
// required regardless of how the frame was declared.
func resolveDesignatedFields(def *ToolDefinition) error {
	lower := strings.ToLower(def.Name)
	wantTitle := lower + "_title"
	wantContent := lower + "_content"

	for i := range def.Fields {
		f := &def.Fields[i]
		switch f.Name {
		case wantTitle:
			if def.TitleField != "" {
				return fmt.Errorf("tool %q: duplicate title field %q", def.Name, f.Name)
			}
			if f.Kind != KindText {
				return fmt.Errorf("tool %q: title field %q must be text", def.Name, f.Name)
			}
			def.TitleField = f.Name
			f.Required = true
			f.Default = nil
		case wantContent:
			if def.ContentField != "" {
				return fmt.Errorf("tool %q: duplicate content field %q", def.Name, f.Name)
			}
			if f.Kind != KindText {
				return fmt.Errorf("tool %q: content field %q must be text", def.Name, f.Name)
			}
			def.ContentField = f.Name
			f.Required = true
			f.Default = nil
		}
	}

	if def.TitleField == "" {
		return fmt.Errorf("tool %q: missing required field %q", def.Name, wantTitle)
	}
	if def.ContentField == "" {
		return fmt.Errorf("tool %q: missing required field %q", def.Name, wantContent)
	}
	return nil
}

func decodeDefault(kind Kind, node yaml.Node) (any, error) {
	switch kind {
	case KindList:
		var v []string
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case KindBool:
		var v bool
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		var v string
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// eachMappingEntry walks a YAML mapping in document order. A zero or null
// node is treated as an empty mapping; any other kind is an error.
func eachMappingEntry(node *yaml.Node, what string, fn func(name string, value *yaml.Node) error) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%s must be a mapping", what)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if err := fn(key.Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || n.IsZero() || n.Tag == "!!null"
}

// scalarValue returns a scalar node's literal text, tolerating numeric
// version strings like `version: 1.0`.
func scalarValue(node yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	return ""
}
