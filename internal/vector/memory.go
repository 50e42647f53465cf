package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MemoryIndex is an in-memory vector index using brute-force cosine similarity.
// Suitable for tests and small corpora.
type MemoryIndex struct {
	dimensions int
	order      []string
	entries    map[string]*memoryEntry
	mu         sync.RWMutex
}

type memoryEntry struct {
	values   []float32
	metadata map[string]any
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*memoryEntry),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert inserts or replaces records. Insertion order is kept for stable tie-breaking.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record id is required")
		}
		if len(r.Values) != m.dimensions {
			return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Values), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(records)
	return len(records), nil
}

func (m *MemoryIndex) putLocked(records []Record) {
	for _, r := range records {
		vec := make([]float32, len(r.Values))
		copy(vec, r.Values)
		if _, ok := m.entries[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.entries[r.ID] = &memoryEntry{values: vec, metadata: copyMetadata(r.Metadata)}
	}
}

// Query returns the topK records matching filter by descending cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, filter Filter, topK int) ([]Match, error) {
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}
	matches := make([]Match, 0)
	for _, id := range m.order {
		e := m.entries[id]
		if !filter.Matches(e.metadata) {
			continue
		}
		matches = append(matches, Match{
			ID:       id,
			Score:    utils.Cosine(vec, e.values),
			Metadata: copyMetadata(e.metadata),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes every record matching filter.
func (m *MemoryIndex) Delete(ctx context.Context, filter Filter) error {
	if err := filter.validateNonEmpty(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(m.matchingIDsLocked(filter))
	return nil
}

func (m *MemoryIndex) removeLocked(ids []string) {
	if len(ids) == 0 {
		return
	}
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
		delete(m.entries, id)
	}
	newOrder := make([]string, 0, len(m.order))
	for _, id := range m.order {
		if !removeSet[id] {
			newOrder = append(newOrder, id)
		}
	}
	m.order = newOrder
}

func (m *MemoryIndex) matchingIDsLocked(filter Filter) []string {
	var ids []string
	for _, id := range m.order {
		if filter.Matches(m.entries[id].metadata) {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeleteAll empties the index.
func (m *MemoryIndex) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return nil
}

func (m *MemoryIndex) clearLocked() {
	m.order = nil
	m.entries = make(map[string]*memoryEntry)
}

// Exists reports whether any record matches filter.
func (m *MemoryIndex) Exists(ctx context.Context, filter Filter) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if filter.Matches(m.entries[id].metadata) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateMetadata merges set into every matching record's metadata.
func (m *MemoryIndex) UpdateMetadata(ctx context.Context, filter Filter, set map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := m.updatedRecordsLocked(filter, set)
	m.putLocked(updated)
	return len(updated), nil
}

// updatedRecordsLocked returns copies of the matching records with set applied, without storing them.
func (m *MemoryIndex) updatedRecordsLocked(filter Filter, set map[string]any) []Record {
	var out []Record
	for _, id := range m.matchingIDsLocked(filter) {
		e := m.entries[id]
		md := copyMetadata(e.metadata)
		for k, v := range set {
			md[k] = v
		}
		out = append(out, Record{ID: id, Values: e.values, Metadata: md})
	}
	return out
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
