// Package models defines core data structures for chunks, documents, and chat exchanges.
package models

import (
	"fmt"
	"strconv"
)

// Metadata keys stored alongside every chunk vector.
const (
	MetaText        = "text"
	MetaDocumentID  = "document_id"
	MetaTitle       = "title"
	MetaChunkNumber = "chunk_number"
	MetaIsInterview = "is_interview"
)

// Chunk is a bounded slice of a document's text, embedded and indexed on its own.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	ChunkNumber int       `json:"chunk_number"`
	IsInterview bool      `json:"is_interview"`
	Embedding   []float32 `json:"-"`
}

// Match is a chunk returned by a similarity query. Higher scores are more relevant.
type Match struct {
	Chunk
	Score float64 `json:"score"`
}

// ChunkID returns the identifier of the n-th chunk of a document.
func ChunkID(documentID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, n)
}

// Metadata returns the metadata written to the vector index for c.
func (c *Chunk) Metadata() map[string]any {
	return map[string]any{
		MetaText:        c.Text,
		MetaDocumentID:  c.DocumentID,
		MetaTitle:       c.Title,
		MetaChunkNumber: c.ChunkNumber,
		MetaIsInterview: c.IsInterview,
	}
}

// ChunkFromMetadata rebuilds a chunk from vector metadata. Remote indexes return numbers
// as float64 and may return booleans as strings, so both are accepted.
func ChunkFromMetadata(id string, md map[string]any) Chunk {
	c := Chunk{ID: id, Title: "Unknown"}
	if md == nil {
		return c
	}
	if v, ok := md[MetaText].(string); ok {
		c.Text = v
	}
	if v, ok := md[MetaDocumentID].(string); ok {
		c.DocumentID = v
	}
	if v, ok := md[MetaTitle].(string); ok && v != "" {
		c.Title = v
	}
	c.ChunkNumber = metadataInt(md[MetaChunkNumber])
	c.IsInterview = metadataBool(md[MetaIsInterview])
	return c
}

func metadataInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		x, _ := strconv.Atoi(n)
		return x
	default:
		return 0
	}
}

func metadataBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		x, _ := strconv.ParseBool(b)
		return x
	default:
		return false
	}
}
