package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory keeps vectors in process memory only. Good for tests.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeBolt keeps vectors in memory backed by a local bbolt file.
	IndexTypeBolt IndexType = "bolt"
	// IndexTypePinecone uses a hosted Pinecone index.
	IndexTypePinecone IndexType = "pinecone"
	// IndexTypeQdrant uses a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewIndex creates the vector index selected by cfg.Type. path is the bolt file location.
func NewIndex(ctx context.Context, cfg config.VectorConfig, path string, dimensions int, logger *zap.Logger) (Index, error) {
	switch IndexType(cfg.Type) {
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeBolt, "":
		return OpenBoltIndex(path, dimensions)
	case IndexTypePinecone:
		return NewPineconeIndex(ctx, cfg.Pinecone, dimensions, cfg.Timeout, logger)
	case IndexTypeQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, dimensions, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, bolt, pinecone, qdrant)", cfg.Type)
	}
}
