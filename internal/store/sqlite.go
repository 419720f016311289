package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mnemon-mcp/mnemon/internal/record"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteConfig holds configuration for the local backend.
type SQLiteConfig struct {
	DataDir string
	// MaxCandidates caps how many predicate-matching rows are ranked
	// in-process per query.
	MaxCandidates int
}

// DefaultSQLiteConfig returns the default local-store configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	home, _ := os.UserHomeDir()
	return SQLiteConfig{
		DataDir:       filepath.Join(home, ".mnemon"),
		MaxCandidates: 1000,
	}
}

// SQLite is the local Store backend. Records live in a single table with
// their embedding as a BLOB; similarity ranking happens in-process with
// cosine similarity over the predicate-matching candidate set. Suitable
// for single-machine use without external services.
type SQLite struct {
	db  *sql.DB
	cfg SQLiteConfig
}

// NewSQLite opens (or creates) the local database under cfg.DataDir with
// WAL mode and runs the schema migration.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 1000
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "memories.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	return &SQLite{db: db, cfg: cfg}, nil
}

// Init creates the records table and the indexes backing predicate
// fields.
func (s *SQLite) Init(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			memory_id           TEXT PRIMARY KEY,
			tool                TEXT    NOT NULL,
			title               TEXT    NOT NULL,
			content             TEXT    NOT NULL,
			session_id          TEXT    NOT NULL,
			sequence_order      INTEGER NOT NULL,
			preceding_memory_id TEXT    NOT NULL DEFAULT '',
			timestamp           TEXT    NOT NULL,
			timestamp_ns        INTEGER NOT NULL,
			agent_id            TEXT    NOT NULL DEFAULT '',
			schema_version      TEXT    NOT NULL DEFAULT '',
			server_version      TEXT    NOT NULL DEFAULT '',
			archetype_title     TEXT    NOT NULL DEFAULT '',
			archetype_version   TEXT    NOT NULL DEFAULT '',
			facets              TEXT    NOT NULL DEFAULT '{}',
			relations           TEXT    NOT NULL DEFAULT '{}',
			embedding           BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_mem_session   ON memories(session_id);
		CREATE INDEX IF NOT EXISTS idx_mem_tool      ON memories(tool);
		CREATE INDEX IF NOT EXISTS idx_mem_timestamp ON memories(timestamp_ns DESC);
		CREATE INDEX IF NOT EXISTS idx_mem_sequence  ON memories(session_id, sequence_order);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migration: %w", err)
	}
	return nil
}

// Upsert writes a record. INSERT OR REPLACE keyed on memory_id makes
// retried writes idempotent.
func (s *SQLite) Upsert(ctx context.Context, rec record.MemoryRecord, vector []float32) error {
	facets, err := json.Marshal(rec.Facets)
	if err != nil {
		return fmt.Errorf("store: encode facets: %w", err)
	}
	relations, err := json.Marshal(rec.Relations)
	if err != nil {
		return fmt.Errorf("store: encode relations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (
			memory_id, tool, title, content, session_id, sequence_order,
			preceding_memory_id, timestamp, timestamp_ns, agent_id,
			schema_version, server_version, archetype_title,
			archetype_version, facets, relations, embedding
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Tool, rec.Title, rec.Content, rec.SessionID, rec.SequenceOrder,
		rec.PrecedingID, rec.Timestamp.Format(time.RFC3339Nano), rec.Timestamp.UnixNano(),
		rec.Meta.AgentID, rec.Meta.SchemaVersion, rec.Meta.ServerVersion,
		rec.Meta.ArchetypeTitle, rec.Meta.ArchetypeVersion,
		string(facets), string(relations), encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// NearestNeighbors selects the predicate-matching candidate set and ranks
// it by cosine similarity in-process.
func (s *SQLite) NearestNeighbors(ctx context.Context, vector []float32, limit int, pred *Predicate) ([]ScoredRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	where, args, err := sqlitePredicate(pred)
	if err != nil {
		return nil, err
	}
	// When more rows match than MaxCandidates, the newest ones form the
	// candidate window; older matches fall out of recall deterministically
	// rather than at the scanner's whim.
	query := selectColumns + where + " ORDER BY timestamp_ns DESC LIMIT ?"
	args = append(args, s.cfg.MaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var results []ScoredRecord
	for rows.Next() {
		rec, embedding, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredRecord{
			MemoryRecord: rec,
			Score:        cosineSimilarity(vector, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetByID fetches one record by its id.
func (s *SQLite) GetByID(ctx context.Context, id string) (*record.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE memory_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("store: get %s: %w", id, err)
		}
		return nil, ErrNotFound
	}
	rec, _, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT memory_id, tool, title, content, session_id, sequence_order,
	       preceding_memory_id, timestamp, agent_id, schema_version,
	       server_version, archetype_title, archetype_version,
	       facets, relations, embedding
	FROM memories`

func scanRecord(rows *sql.Rows) (record.MemoryRecord, []float32, error) {
	var rec record.MemoryRecord
	var ts, facets, relations string
	var embedding []byte
	err := rows.Scan(
		&rec.ID, &rec.Tool, &rec.Title, &rec.Content, &rec.SessionID,
		&rec.SequenceOrder, &rec.PrecedingID, &ts, &rec.Meta.AgentID,
		&rec.Meta.SchemaVersion, &rec.Meta.ServerVersion,
		&rec.Meta.ArchetypeTitle, &rec.Meta.ArchetypeVersion,
		&facets, &relations, &embedding,
	)
	if err != nil {
		return rec, nil, fmt.Errorf("store: scan record: %w", err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return rec, nil, fmt.Errorf("store: record %s timestamp: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(facets), &rec.Facets); err != nil {
		return rec, nil, fmt.Errorf("store: record %s facets: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(relations), &rec.Relations); err != nil {
		return rec, nil, fmt.Errorf("store: record %s relations: %w", rec.ID, err)
	}
	return rec, decodeVector(embedding), nil
}

// sqlitePredicate translates a Predicate into a WHERE clause. Timestamp
// conditions compare against the numeric timestamp_ns column; everything
// else compares its column directly.
func sqlitePredicate(pred *Predicate) (string, []any, error) {
	if pred == nil || len(pred.Must) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, c := range pred.Must {
		col, ok := sqliteColumns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("store: unfilterable field %q", c.Field)
		}
		ts := c.Field == "timestamp"
		if ts {
			col = "timestamp_ns"
		}
		switch c.Op {
		case OpIs:
			clauses = append(clauses, col+" = ?")
			args = append(args, sqliteValue(c.Value, ts))
		case OpIsNot:
			clauses = append(clauses, col+" <> ?")
			args = append(args, sqliteValue(c.Value, ts))
		case OpBefore:
			clauses = append(clauses, col+" < ?")
			args = append(args, sqliteValue(c.Value, ts))
		case OpAfter:
			clauses = append(clauses, col+" > ?")
			args = append(args, sqliteValue(c.Value, ts))
		case OpBetween:
			clauses = append(clauses, col+" >= ? AND "+col+" <= ?")
			args = append(args, sqliteValue(c.From, ts), sqliteValue(c.To, ts))
		case OpContains:
			clauses = append(clauses, col+" LIKE '%' || ? || '%'")
			args = append(args, sqliteValue(c.Value, ts))
		case OpAnyOf:
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			clauses = append(clauses, col+" IN ("+placeholders+")")
			for _, v := range c.Values {
				args = append(args, sqliteValue(v, ts))
			}
		default:
			return "", nil, fmt.Errorf("store: unsupported operator %q", c.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// sqliteColumns maps logical predicate field names to table columns.
var sqliteColumns = map[string]string{
	"memory_id":           "memory_id",
	"tool":                "tool",
	"title":               "title",
	"session_id":          "session_id",
	"sequence_order":      "sequence_order",
	"timestamp":           "timestamp",
	"preceding_memory_id": "preceding_memory_id",
	"agent_id":            "agent_id",
	"schema_version":      "schema_version",
	"archetype_title":     "archetype_title",
	"archetype_version":   "archetype_version",
}

// sqliteValue converts predicate values to SQL arguments. Timestamps
// arrive as time.Time from the filter translator and compare as unix
// nanoseconds.
func sqliteValue(v any, isTimestamp bool) any {
	if isTimestamp {
		if t, ok := v.(time.Time); ok {
			return t.UnixNano()
		}
	}
	return v
}

// encodeVector serializes an embedding as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
