// Package record defines the persisted memory record and the builder that
// assembles one from a validated invocation.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/mnemon-mcp/mnemon/internal/archetype"
	"github.com/mnemon-mcp/mnemon/internal/invocation"
	"github.com/mnemon-mcp/mnemon/internal/session"
)

// Meta is the system-level block attached to every record, used for
// filtering and identification.
type Meta struct {
	AgentID          string `json:"agent_id"`
	SchemaVersion    string `json:"schema_version"`
	ServerVersion    string `json:"server_version"`
	ArchetypeTitle   string `json:"archetype_title"`
	ArchetypeVersion string `json:"archetype_version"`
}

// MemoryRecord is a persisted, retrievable artifact. Records are written
// once and never mutated; the id is the only stable external handle.
type MemoryRecord struct {
	ID      string `json:"memory_id"`
	Tool    string `json:"tool"`
	Title   string `json:"title"`
	Content string `json:"content"`

	SessionID     string    `json:"session_id"`
	SequenceOrder int       `json:"sequence_order"`
	PrecedingID   string    `json:"preceding_memory_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	// Facets holds every scalar field that is not the title or content:
	// facet-bound values, plain text fields, and booleans.
	Facets map[string]any `json:"facets"`
	// Relations holds list-valued fields. Entries may be free-text
	// concepts or ids of other records; neither is resolved at write time.
	Relations map[string][]string `json:"relations"`

	Meta Meta `json:"meta"`
}

// Test seams, following the package-var injection style used elsewhere.
var (
	newID  = uuid.NewString
	nowUTC = func() time.Time { return time.Now().UTC() }
)

// Builder turns validated invocations into memory records. The meta block
// is fixed at construction and stamped onto every record.
type Builder struct {
	meta Meta
}

// NewBuilder creates a Builder that stamps records with the given meta.
func NewBuilder(meta Meta) *Builder {
	return &Builder{meta: meta}
}

// Build assembles a MemoryRecord from a validated invocation, its tool
// definition, and the session lease holding the record's position. The
// caller owns the lease: commit it only after the record is durably
// written, abort it otherwise.
func (b *Builder) Build(def *archetype.ToolDefinition, inv *invocation.Invocation, lease *session.Lease) MemoryRecord {
	rec := MemoryRecord{
		ID:            newID(),
		Tool:          def.Name,
		Title:         inv.Title(def),
		Content:       inv.Content(def),
		SessionID:     lease.SessionID,
		SequenceOrder: lease.Sequence,
		PrecedingID:   lease.PrecedingID,
		Timestamp:     nowUTC(),
		Facets:        make(map[string]any),
		Relations:     make(map[string][]string),
		Meta:          b.meta,
	}

	for _, spec := range def.Fields {
		if spec.Name == def.TitleField || spec.Name == def.ContentField {
			continue
		}
		value := inv.Fields[spec.Name]
		if spec.Kind == archetype.KindList {
			list, _ := value.([]string)
			rec.Relations[spec.Name] = list
			continue
		}
		rec.Facets[spec.Name] = value
	}

	return rec
}
