// Package vector stores chunk embeddings with metadata and answers filtered similarity queries.
package vector

import (
	"context"
	"fmt"
)

// Record is one vector with its metadata.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is a query hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Filter is a conjunction of metadata equality predicates. An empty filter matches everything.
type Filter map[string]any

// Index is a similarity-searchable store of vectors with metadata.
type Index interface {
	// Upsert inserts or replaces records by ID and returns how many were written.
	Upsert(ctx context.Context, records []Record) (int, error)
	// Query returns at most topK records matching filter, by descending similarity to vec.
	Query(ctx context.Context, vec []float32, filter Filter, topK int) ([]Match, error)
	// Delete removes every record matching filter. The filter must not be empty.
	Delete(ctx context.Context, filter Filter) error
	DeleteAll(ctx context.Context) error
	Exists(ctx context.Context, filter Filter) (bool, error)
	// UpdateMetadata merges set into the metadata of every record matching filter.
	UpdateMetadata(ctx context.Context, filter Filter, set map[string]any) (int, error)
	Count(ctx context.Context) (int, error)
	Type() string
	Close() error
}

// Matches reports whether md satisfies every predicate in f.
func (f Filter) Matches(md map[string]any) bool {
	for k, want := range f {
		got, ok := md[k]
		if !ok {
			return false
		}
		if normalizeValue(got) != normalizeValue(want) {
			return false
		}
	}
	return true
}

func (f Filter) validateNonEmpty() error {
	if len(f) == 0 {
		return fmt.Errorf("delete requires a non-empty filter")
	}
	return nil
}

// normalizeValue makes metadata decoded from JSON comparable with values set in Go.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case string:
		switch x {
		case "true":
			return true
		case "false":
			return false
		}
		return x
	default:
		return v
	}
}

func copyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// probeVector is the unit vector used for filter-only lookups against backends that require a query vector.
func probeVector(dims int) []float32 {
	if dims <= 0 {
		dims = 1
	}
	v := make([]float32, dims)
	v[0] = 1
	return v
}
