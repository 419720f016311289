package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mnemon-mcp/mnemon/internal/record"
)

// QdrantConfig holds configuration for the remote backend.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	// VectorSize must match the embedder's dimensionality.
	VectorSize int

	// Attempts and Backoff bound the retry loop. Retrying writes is safe
	// because point ids are caller-generated uuids.
	Attempts int
	Backoff  time.Duration
}

// Qdrant is the remote Store backend, speaking Qdrant's HTTP API
// directly.
type Qdrant struct {
	cfg    QdrantConfig
	client *http.Client
}

// NewQdrant creates a Qdrant-backed store. Missing config fields take
// the usual local-instance defaults.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	return &Qdrant{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Init ensures the collection exists (idempotent) and creates payload
// indexes for every filterable field.
func (q *Qdrant) Init(ctx context.Context) error {
	create := map[string]any{
		"vectors": map[string]any{
			"size":     q.cfg.VectorSize,
			"distance": "Cosine",
		},
	}
	err := q.do(ctx, http.MethodPut, q.collectionPath(""), create, nil)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("store: create collection: %w", err)
	}

	for field, schema := range qdrantIndexes {
		req := map[string]any{
			"field_name":   field,
			"field_schema": schema,
		}
		// Index creation is idempotent; existing indexes are fine.
		if err := q.do(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), req, nil); err != nil &&
			!strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return fmt.Errorf("store: index %s: %w", field, err)
		}
	}
	return nil
}

// qdrantIndexes lists the payload indexes backing the filterable fields.
var qdrantIndexes = map[string]string{
	"tool":                   "keyword",
	"title":                  "text",
	"session_id":             "keyword",
	"sequence_order":         "integer",
	"memory_id":              "keyword",
	"timestamp":              "datetime",
	"preceding_memory_id":    "keyword",
	"meta.agent_id":          "keyword",
	"meta.schema_version":    "keyword",
	"meta.archetype_title":   "keyword",
	"meta.archetype_version": "keyword",
}

// Upsert writes one point, keyed by the record's uuid so retries cannot
// produce duplicates.
func (q *Qdrant) Upsert(ctx context.Context, rec record.MemoryRecord, vector []float32) error {
	req := map[string]any{
		"points": []map[string]any{{
			"id":      rec.ID,
			"vector":  vector,
			"payload": qdrantPayload(rec),
		}},
	}
	return withRetry(ctx, q.cfg.Attempts, q.cfg.Backoff, func() error {
		return q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), req, nil)
	})
}

// NearestNeighbors runs a filtered similarity search.
func (q *Qdrant) NearestNeighbors(ctx context.Context, vector []float32, limit int, pred *Predicate) ([]ScoredRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if pred != nil && len(pred.Must) > 0 {
		filter, err := qdrantFilter(pred)
		if err != nil {
			return nil, err
		}
		req["filter"] = filter
	}

	var env qdrantEnvelope[[]qdrantPoint]
	err := withRetry(ctx, q.cfg.Attempts, q.cfg.Backoff, func() error {
		return q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), req, &env)
	})
	if err != nil {
		return nil, err
	}

	results := make([]ScoredRecord, 0, len(env.Result))
	for _, p := range env.Result {
		results = append(results, ScoredRecord{
			MemoryRecord: recordFromPayload(p),
			Score:        p.Score,
		})
	}
	return results, nil
}

// GetByID retrieves one point by uuid.
func (q *Qdrant) GetByID(ctx context.Context, id string) (*record.MemoryRecord, error) {
	req := map[string]any{
		"ids":          []string{id},
		"with_payload": true,
	}
	var env qdrantEnvelope[[]qdrantPoint]
	err := withRetry(ctx, q.cfg.Attempts, q.cfg.Backoff, func() error {
		if derr := q.do(ctx, http.MethodPost, q.collectionPath("/points"), req, &env); derr != nil {
			return derr
		}
		if len(env.Result) == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec := recordFromPayload(env.Result[0])
	return &rec, nil
}

// Close is a no-op; the HTTP client holds no persistent connections that
// outlive idle timeout.
func (q *Qdrant) Close() error { return nil }

// qdrantPayload flattens a record into the stored payload shape.
func qdrantPayload(rec record.MemoryRecord) map[string]any {
	payload := map[string]any{
		"memory_id":      rec.ID,
		"tool":           rec.Tool,
		"title":          rec.Title,
		"content":        rec.Content,
		"session_id":     rec.SessionID,
		"sequence_order": rec.SequenceOrder,
		"timestamp":      rec.Timestamp.Format(time.RFC3339Nano),
		"facets":         rec.Facets,
		"relations":      rec.Relations,
		"meta": map[string]any{
			"agent_id":          rec.Meta.AgentID,
			"schema_version":    rec.Meta.SchemaVersion,
			"server_version":    rec.Meta.ServerVersion,
			"archetype_title":   rec.Meta.ArchetypeTitle,
			"archetype_version": rec.Meta.ArchetypeVersion,
		},
	}
	if rec.PrecedingID != "" {
		payload["preceding_memory_id"] = rec.PrecedingID
	}
	return payload
}

func recordFromPayload(p qdrantPoint) record.MemoryRecord {
	pay := p.Payload
	rec := record.MemoryRecord{
		ID:            stringAt(pay, "memory_id"),
		Tool:          stringAt(pay, "tool"),
		Title:         stringAt(pay, "title"),
		Content:       stringAt(pay, "content"),
		SessionID:     stringAt(pay, "session_id"),
		SequenceOrder: intAt(pay, "sequence_order"),
		PrecedingID:   stringAt(pay, "preceding_memory_id"),
		Facets:        mapAt(pay, "facets"),
		Relations:     listMapAt(pay, "relations"),
	}
	if rec.ID == "" {
		rec.ID = p.ID
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringAt(pay, "timestamp")); err == nil {
		rec.Timestamp = ts
	}
	if meta, ok := pay["meta"].(map[string]any); ok {
		rec.Meta = record.Meta{
			AgentID:          stringAt(meta, "agent_id"),
			SchemaVersion:    stringAt(meta, "schema_version"),
			ServerVersion:    stringAt(meta, "server_version"),
			ArchetypeTitle:   stringAt(meta, "archetype_title"),
			ArchetypeVersion: stringAt(meta, "archetype_version"),
		}
	}
	return rec
}

// qdrantFields maps logical predicate fields to payload paths.
var qdrantFields = map[string]string{
	"memory_id":           "memory_id",
	"tool":                "tool",
	"title":               "title",
	"session_id":          "session_id",
	"sequence_order":      "sequence_order",
	"timestamp":           "timestamp",
	"preceding_memory_id": "preceding_memory_id",
	"agent_id":            "meta.agent_id",
	"schema_version":      "meta.schema_version",
	"archetype_title":     "meta.archetype_title",
	"archetype_version":   "meta.archetype_version",
}

// qdrantFilter translates a Predicate into Qdrant's filter JSON: a
// conjunction of `must` conditions.
func qdrantFilter(pred *Predicate) (map[string]any, error) {
	must := make([]map[string]any, 0, len(pred.Must))
	for _, c := range pred.Must {
		key, ok := qdrantFields[c.Field]
		if !ok {
			return nil, fmt.Errorf("store: unfilterable field %q", c.Field)
		}
		cond := map[string]any{"key": key}
		switch c.Op {
		case OpIs:
			cond["match"] = map[string]any{"value": qdrantValue(c.Value)}
		case OpIsNot:
			cond["match"] = map[string]any{"except": []any{qdrantValue(c.Value)}}
		case OpBefore:
			cond["range"] = map[string]any{"lt": qdrantValue(c.Value)}
		case OpAfter:
			cond["range"] = map[string]any{"gt": qdrantValue(c.Value)}
		case OpBetween:
			cond["range"] = map[string]any{"gte": qdrantValue(c.From), "lte": qdrantValue(c.To)}
		case OpContains:
			cond["match"] = map[string]any{"text": qdrantValue(c.Value)}
		case OpAnyOf:
			vals := make([]any, 0, len(c.Values))
			for _, v := range c.Values {
				vals = append(vals, qdrantValue(v))
			}
			cond["match"] = map[string]any{"any": vals}
		default:
			return nil, fmt.Errorf("store: unsupported operator %q", c.Op)
		}
		must = append(must, cond)
	}
	return map[string]any{"must": must}, nil
}

// qdrantValue renders predicate values; timestamps travel as RFC 3339
// strings against the datetime-indexed field.
func qdrantValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.cfg.Collection) + suffix
}

// do performs one HTTP exchange and decodes the response envelope into
// out when non-nil.
func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.cfg.BaseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		if json.Unmarshal(payload, &env) == nil && env.Status.Error != "" {
			return errors.New(env.Status.Error)
		}
		return fmt.Errorf("qdrant %s %s: http %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intAt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func mapAt(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func listMapAt(m map[string]any, key string) map[string][]string {
	raw, _ := m[key].(map[string]any)
	if raw == nil {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for name, v := range raw {
		items, _ := v.([]any)
		list := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		out[name] = list
	}
	return out
}
