package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var vectorsBucket = []byte("vectors")

// BoltIndex is a MemoryIndex persisted write-through to a bbolt file. The file is loaded at open.
type BoltIndex struct {
	*MemoryIndex
	db *bbolt.DB
}

type boltRecord struct {
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

// OpenBoltIndex opens (or creates) the index file at path and loads its vectors into memory.
func OpenBoltIndex(path string, dimensions int) (*BoltIndex, error) {
	mem, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	idx := &BoltIndex{MemoryIndex: mem, db: db}
	if err := idx.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (b *BoltIndex) load() error {
	var records []Record
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(vectorsBucket)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var r boltRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode vector %s: %w", k, err)
			}
			if len(r.Values) != b.dimensions {
				return fmt.Errorf("vector %s has dimension %d, index expects %d", k, len(r.Values), b.dimensions)
			}
			records = append(records, Record{ID: string(k), Values: r.Values, Metadata: r.Metadata})
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to load vector store: %w", err)
	}
	b.mu.Lock()
	b.putLocked(records)
	b.mu.Unlock()
	return nil
}

// Type returns the index type identifier.
func (b *BoltIndex) Type() string {
	return string(IndexTypeBolt)
}

// Upsert writes records to disk, then to memory.
func (b *BoltIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record id is required")
		}
		if len(r.Values) != b.dimensions {
			return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Values), b.dimensions)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.persist(records); err != nil {
		return 0, err
	}
	b.putLocked(records)
	return len(records), nil
}

func (b *BoltIndex) persist(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(vectorsBucket)
		for _, r := range records {
			data, err := json.Marshal(boltRecord{Values: r.Values, Metadata: r.Metadata})
			if err != nil {
				return fmt.Errorf("encode vector %s: %w", r.ID, err)
			}
			if err := bucket.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes matching records from disk and memory.
func (b *BoltIndex) Delete(ctx context.Context, filter Filter) error {
	if err := filter.validateNonEmpty(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.matchingIDsLocked(filter)
	if len(ids) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(vectorsBucket)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	b.removeLocked(ids)
	return nil
}

// DeleteAll drops and recreates the bucket, then clears memory, under one lock.
func (b *BoltIndex) DeleteAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(vectorsBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(vectorsBucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	b.clearLocked()
	return nil
}

// UpdateMetadata persists the merged metadata before applying it in memory.
func (b *BoltIndex) UpdateMetadata(ctx context.Context, filter Filter, set map[string]any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	updated := b.updatedRecordsLocked(filter, set)
	if err := b.persist(updated); err != nil {
		return 0, fmt.Errorf("failed to update metadata: %w", err)
	}
	b.putLocked(updated)
	return len(updated), nil
}

// Close closes the underlying file.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}
