// Package query implements the read path: translating caller filters into
// store predicates, running the three search strategies, and shaping
// results to the requested detail level.
package query

import (
	"fmt"
	"time"

	"github.com/mnemon-mcp/mnemon/internal/store"
)

// FilterCriterion is one caller-supplied predicate clause. Value is a
// scalar for most operators, a [from, to] pair for between, and a list
// for any_of.
type FilterCriterion struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// filterableFields is the fixed set of metadata keys a query may filter
// on. Free-form record fields (content, facet values) are reachable only
// through similarity search.
var filterableFields = map[string]bool{
	"session_id":          true,
	"tool":                true,
	"agent_id":            true,
	"title":               true,
	"sequence_order":      true,
	"memory_id":           true,
	"timestamp":           true,
	"preceding_memory_id": true,
	"archetype_title":     true,
	"archetype_version":   true,
	"schema_version":      true,
}

// Translate converts the criteria list into a store predicate. All
// criteria are ANDed. Any malformed criterion fails the whole query; a
// silently-dropped filter would return records the caller asked to
// exclude.
func Translate(criteria []FilterCriterion) (*store.Predicate, error) {
	if len(criteria) == 0 {
		return nil, nil
	}

	pred := &store.Predicate{Must: make([]store.Condition, 0, len(criteria))}
	for i, c := range criteria {
		cond, err := translateCriterion(c)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		pred.Must = append(pred.Must, cond)
	}
	return pred, nil
}

func translateCriterion(c FilterCriterion) (store.Condition, error) {
	var cond store.Condition
	if !filterableFields[c.Field] {
		return cond, fmt.Errorf("field %q is not filterable", c.Field)
	}
	cond.Field = c.Field
	cond.Op = store.Op(c.Operator)

	switch cond.Op {
	case store.OpIs, store.OpIsNot:
		v, err := scalarFilterValue(c.Field, c.Value)
		if err != nil {
			return cond, err
		}
		cond.Value = v

	case store.OpContains:
		v, err := textFilterValue(c.Field, c.Value)
		if err != nil {
			return cond, err
		}
		cond.Value = v

	case store.OpBefore, store.OpAfter:
		v, err := ordinalFilterValue(c.Field, c.Value)
		if err != nil {
			return cond, err
		}
		cond.Value = v

	case store.OpBetween:
		pair, ok := c.Value.([]any)
		if !ok || len(pair) != 2 {
			return cond, fmt.Errorf("between requires a [from, to] pair")
		}
		from, err := ordinalFilterValue(c.Field, pair[0])
		if err != nil {
			return cond, err
		}
		to, err := ordinalFilterValue(c.Field, pair[1])
		if err != nil {
			return cond, err
		}
		cond.From, cond.To = from, to

	case store.OpAnyOf:
		items, ok := c.Value.([]any)
		if !ok || len(items) == 0 {
			return cond, fmt.Errorf("any_of requires a non-empty list of values")
		}
		vals := make([]any, 0, len(items))
		for _, item := range items {
			v, err := scalarFilterValue(c.Field, item)
			if err != nil {
				return cond, err
			}
			vals = append(vals, v)
		}
		cond.Values = vals

	default:
		return cond, fmt.Errorf("unknown operator %q", c.Operator)
	}
	return cond, nil
}

// scalarFilterValue normalizes one filter value for its field: timestamps
// become time.Time, sequence_order becomes int, everything else must be a
// string.
func scalarFilterValue(field string, v any) (any, error) {
	switch field {
	case "timestamp":
		return parseFilterTime(v)
	case "sequence_order":
		return filterInt(v)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q requires a string value, got %T", field, v)
		}
		return s, nil
	}
}

// textFilterValue rejects substring matching on fields that are not text.
// A contains over a timestamp or a sequence number has no meaning in any
// backend, so it fails at query construction.
func textFilterValue(field string, v any) (any, error) {
	switch field {
	case "timestamp", "sequence_order":
		return nil, fmt.Errorf("field %q does not support contains", field)
	default:
		return scalarFilterValue(field, v)
	}
}

// ordinalFilterValue additionally rejects fields with no ordering, where
// before/after/between would be meaningless.
func ordinalFilterValue(field string, v any) (any, error) {
	switch field {
	case "timestamp", "sequence_order":
		return scalarFilterValue(field, v)
	default:
		return nil, fmt.Errorf("field %q does not support range operators", field)
	}
}

func parseFilterTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp filter requires an RFC 3339 string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}, fmt.Errorf("timestamp filter %q is not RFC 3339", s)
		}
	}
	return t, nil
}

func filterInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("sequence_order filter requires an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("sequence_order filter requires an integer, got %T", v)
	}
}
