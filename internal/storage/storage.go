// Package storage persists the per-document metadata table.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

var (
	// ErrDocumentNotFound is returned when no row has the requested id or source.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDuplicateDocument is returned when inserting an id that already exists.
	ErrDuplicateDocument = errors.New("document already exists")
)

// Storage defines document metadata persistence. The vector index stays authoritative for
// retrieval; this table serves listing, status and source lookups.
type Storage interface {
	// CreateDocument inserts doc. When doc.IsInterview is set, any previous interview flag is
	// cleared in the same transaction.
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentBySource(ctx context.Context, source string) (*models.Document, error)
	DocumentExists(ctx context.Context, id string) (bool, error)
	// ListDocuments returns documents newest first.
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteAllDocuments(ctx context.Context) (int64, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	// Paths lists the files backing the store, for disk usage reporting.
	Paths() []string

	Close() error
}
