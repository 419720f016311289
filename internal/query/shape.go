package query

import (
	"time"

	"github.com/mnemon-mcp/mnemon/internal/store"
)

// now is a test seam for relative-time rendering.
var now = time.Now

// Shape renders one scored record at the given detail level. Levels are
// strictly additive: each includes everything the previous one does.
func Shape(detail string, r store.ScoredRecord) map[string]any {
	out := map[string]any{
		"memory_id": r.ID,
		"title":     r.Title,
		"tool":      r.Tool,
		"score":     r.Score,
	}
	if detail == DetailCompact {
		return out
	}

	out["content"] = r.Content
	out["content_preview"] = ContentPreview(r.Content, previewLength)
	out["timestamp"] = r.Timestamp.Format(time.RFC3339Nano)
	out["relative_time"] = RelativeTime(r.Timestamp, now())
	out["facets"] = r.Facets
	if detail == DetailSummary {
		return out
	}

	out["relations"] = r.Relations
	out["session_id"] = r.SessionID
	out["sequence_order"] = r.SequenceOrder
	out["preceding_memory_id"] = r.PrecedingID
	if detail == DetailGraph {
		return out
	}

	out["meta"] = r.Meta
	return out
}
