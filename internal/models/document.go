package models

import "time"

// Document is a logical group of chunks sharing a content-derived document ID.
type Document struct {
	ID           string    `json:"document_id" db:"id"`
	Title        string    `json:"title" db:"title"`
	TotalChunks  int       `json:"total_chunks" db:"total_chunks"`
	ContentBytes int64     `json:"content_bytes,omitempty" db:"content_bytes"`
	IsInterview  bool      `json:"is_interview" db:"is_interview"`
	Source       string    `json:"source,omitempty" db:"source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DocumentPage is one page of the document listing.
type DocumentPage struct {
	Documents []*Document `json:"documents"`
	Total     int64       `json:"total"`
	Page      int         `json:"page"`
	Limit     int         `json:"limit"`
	HasMore   bool        `json:"has_more"`
	Status    string      `json:"status"`
}

// UploadInput is the input for ingesting one document.
// Filename is the original file name; Source is an optional path for watched files.
type UploadInput struct {
	Text        string
	Filename    string
	Source      string
	IsInterview bool
}

// UploadResult reports a successful ingestion.
type UploadResult struct {
	Message       string `json:"message"`
	DocumentID    string `json:"document_id"`
	Title         string `json:"title"`
	ChunksCreated int    `json:"chunks_created"`
	Status        string `json:"status"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
}
