// Package indexer ingests documents: it validates, chunks, embeds and stores them.
package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits cleaned text into overlapping character windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	maxChunks    int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// maxChunks <= 0 disables the chunk limit.
func NewChunker(chunkSize, chunkOverlap, maxChunks int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		maxChunks:    maxChunks,
	}
}

// Chunk cleans text and splits it into chunks with IDs {docID}_chunk_{n}.
// Returns a validation error when the document needs more than maxChunks chunks.
func (c *Chunker) Chunk(docID, text string) ([]models.Chunk, error) {
	runes := []rune(Clean(text))
	if len(runes) == 0 {
		return nil, nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]models.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			n := len(chunks)
			chunks = append(chunks, models.Chunk{
				ID:          models.ChunkID(docID, n),
				DocumentID:  docID,
				Text:        piece,
				ChunkNumber: n,
			})
			if c.maxChunks > 0 && len(chunks) > c.maxChunks {
				return nil, apperr.Validation("document too large: exceeds %d chunks", c.maxChunks)
			}
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks, nil
}
