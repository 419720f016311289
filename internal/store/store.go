// Package store defines the persistence collaborator for memory records
// and its two backends: a local SQLite store and a remote Qdrant store.
//
// Both backends share a small contract — upsert a record with its
// embedding, fetch nearest neighbors under an optional predicate, fetch a
// record by id — so everything above this package is backend-agnostic.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mnemon-mcp/mnemon/internal/record"
)

// ErrNotFound reports that no record exists for a requested id.
var ErrNotFound = errors.New("memory record not found")

// ErrUnavailable reports that the backend stayed unreachable after the
// bounded retry budget was spent.
var ErrUnavailable = errors.New("storage unavailable")

// ScoredRecord pairs a record with its similarity score for one query.
type ScoredRecord struct {
	record.MemoryRecord
	Score float64
}

// Op enumerates predicate operators. Semantics are identical across
// backends: before/after are strict, between is inclusive, contains is
// substring (text) or element (list) match, any_of is set membership.
type Op string

// Predicate operators.
const (
	OpIs       Op = "is"
	OpIsNot    Op = "is_not"
	OpBefore   Op = "before"
	OpAfter    Op = "after"
	OpBetween  Op = "between"
	OpContains Op = "contains"
	OpAnyOf    Op = "any_of"
)

// Condition is one predicate clause over a logical record field
// (session_id, tool, agent_id, title, sequence_order, memory_id,
// timestamp, preceding_memory_id, archetype_title, archetype_version,
// schema_version). Each backend maps the logical name onto its native
// key. Exactly one of Value / Values / From+To is set, depending on Op.
type Condition struct {
	Field string
	Op    Op

	Value    any   // is, is_not, before, after, contains
	Values   []any // any_of
	From, To any   // between (inclusive)
}

// Predicate is a conjunction of conditions. There is no OR or grouping;
// the restriction keeps translation total and unambiguous on every
// backend.
type Predicate struct {
	Must []Condition
}

// Store is the persistence collaborator. Implementations must make Upsert
// idempotent on the record id so an ambiguous acknowledgment can be
// retried without risking duplicates.
type Store interface {
	// Init prepares the backend: opens or creates the collection/schema
	// and ensures indexes for the filterable fields.
	Init(ctx context.Context) error
	// Upsert durably writes a record and its embedding.
	Upsert(ctx context.Context, rec record.MemoryRecord, vector []float32) error
	// NearestNeighbors returns up to limit records ranked by similarity
	// to vector, restricted to pred when non-nil. Results are ordered by
	// descending score.
	NearestNeighbors(ctx context.Context, vector []float32, limit int, pred *Predicate) ([]ScoredRecord, error)
	// GetByID fetches one record, returning ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*record.MemoryRecord, error)
	Close() error
}

// cosineSimilarity computes the cosine similarity of two vectors,
// returning 0 for mismatched or zero-magnitude inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// retry sleep seam for tests.
var retrySleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs fn up to attempts times with doubling backoff. Context
// cancellation stops the loop immediately. The last error is wrapped in
// ErrUnavailable once the budget is exhausted.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if i < attempts-1 {
			if serr := retrySleep(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
		}
	}
	return errors.Join(ErrUnavailable, err)
}
