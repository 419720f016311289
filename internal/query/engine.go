package query

import (
	"context"
	"fmt"

	"github.com/mnemon-mcp/mnemon/internal/embed"
	"github.com/mnemon-mcp/mnemon/internal/store"
)

// Search strategies.
const (
	SearchBasic    = "basic"
	SearchFiltered = "filtered"
	SearchByID     = "by_memory_id"
)

// Detail levels, from tersest to complete.
const (
	DetailCompact = "compact"
	DetailSummary = "summary"
	DetailGraph   = "graph"
	DetailFull    = "full"
)

// Limit bounds. Callers get DefaultLimit results unless they ask for
// more; MaxLimit keeps a single response from flooding the model's
// context window.
const (
	DefaultLimit = 3
	MaxLimit     = 10
)

// DefaultThreshold discards weakly-related matches unless the caller
// overrides it. Zero disables thresholding entirely.
const DefaultThreshold = 0.4

// Request is one search invocation. Zero values mean "use the default":
// SearchType basic, Detail summary, Limit DefaultLimit.
type Request struct {
	Query          string
	SearchType     string
	Limit          int
	Filters        []FilterCriterion
	Detail         string
	ScoreThreshold float64
}

// Response carries shaped, score-ordered results.
type Response struct {
	Query      string           `json:"query"`
	SearchType string           `json:"search_type"`
	Count      int              `json:"count"`
	Results    []map[string]any `json:"results"`
}

// Engine is the read path over the memory store. It never mutates
// records.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
}

// NewEngine creates a query engine over the given store and embedder.
func NewEngine(s store.Store, e embed.Embedder) *Engine {
	return &Engine{store: s, embedder: e}
}

// Search runs one request, terminal on the first matching strategy.
// Malformed requests (unknown search type, bad filter, out-of-range
// threshold) return an error without touching the store.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query: empty query")
	}
	detail, err := normalizeDetail(req.Detail)
	if err != nil {
		return nil, err
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 1 {
		return nil, fmt.Errorf("query: score_threshold %v outside [0.0, 1.0]", req.ScoreThreshold)
	}
	limit := clampLimit(req.Limit)

	searchType := req.SearchType
	if searchType == "" {
		searchType = SearchBasic
	}

	var results []store.ScoredRecord
	switch searchType {
	case SearchByID:
		rec, err := e.store.GetByID(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		// A direct fetch has no similarity distance; report a full match.
		results = []store.ScoredRecord{{MemoryRecord: *rec, Score: 1.0}}

	case SearchBasic:
		results, err = e.similarity(ctx, req.Query, limit, nil)
		if err != nil {
			return nil, err
		}
		results = applyThreshold(results, req.ScoreThreshold)

	case SearchFiltered:
		pred, err := Translate(req.Filters)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		results, err = e.similarity(ctx, req.Query, limit, pred)
		if err != nil {
			return nil, err
		}
		results = applyThreshold(results, req.ScoreThreshold)

	default:
		return nil, fmt.Errorf("query: unknown search_type %q", req.SearchType)
	}

	resp := &Response{
		Query:      req.Query,
		SearchType: searchType,
		Count:      len(results),
		Results:    make([]map[string]any, 0, len(results)),
	}
	for _, r := range results {
		resp.Results = append(resp.Results, Shape(detail, r))
	}
	return resp, nil
}

func (e *Engine) similarity(ctx context.Context, text string, limit int, pred *store.Predicate) ([]store.ScoredRecord, error) {
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query: embed query: %w", err)
	}
	return e.store.NearestNeighbors(ctx, vector, limit, pred)
}

// applyThreshold drops results scoring below min. Zero is a pass-through
// rather than a >= 0 comparison, so negative-similarity results survive
// an unset threshold.
func applyThreshold(results []store.ScoredRecord, min float64) []store.ScoredRecord {
	if min == 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= min {
			kept = append(kept, r)
		}
	}
	return kept
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func normalizeDetail(detail string) (string, error) {
	switch detail {
	case "":
		return DetailSummary, nil
	case DetailCompact, DetailSummary, DetailGraph, DetailFull:
		return detail, nil
	default:
		return "", fmt.Errorf("query: unknown detail level %q", detail)
	}
}
