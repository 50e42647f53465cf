package models

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/apperr"
)

// StatusSuccess is the status string reported on successful responses.
const StatusSuccess = "success"

// ChatRequest is a question, optionally scoped to one document or to the interview corpus.
type ChatRequest struct {
	Message       string `json:"message"`
	DocumentID    string `json:"document_id,omitempty"`
	InterviewMode bool   `json:"interview_mode,omitempty"`
}

// Validate checks the raw message length (in characters), then trims the request.
func (r *ChatRequest) Validate(maxLength int) error {
	if maxLength > 0 && utf8.RuneCountInString(r.Message) > maxLength {
		return apperr.Validation("message too long (max %d characters)", maxLength)
	}
	r.Message = strings.TrimSpace(r.Message)
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	if r.Message == "" {
		return apperr.Validation("message cannot be empty")
	}
	return nil
}

// RetrievalQuery selects the chunks that ground an answer. An empty DocumentID means broad retrieval.
type RetrievalQuery struct {
	Query         string
	DocumentID    string
	InterviewOnly bool
}

// Source is the provenance of one chunk used as context.
type Source struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	ChunkNumber int    `json:"chunk_number"`
	Text        string `json:"text"`
}

// ChatResponse is the answer plus the chunks it was grounded on.
type ChatResponse struct {
	Response    string   `json:"response"`
	Status      string   `json:"status"`
	SourcesUsed bool     `json:"sources_used"`
	Sources     []Source `json:"sources"`
}

// ChatMessage is one prior conversational turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
