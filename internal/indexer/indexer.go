package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/docid"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// MaxPageSize is the largest page accepted by List.
const MaxPageSize = 100

// Indexer ingests documents into the vector index and the metadata table.
type Indexer struct {
	storage   storage.Storage
	embedder  embedding.Embedder
	index     vector.Index
	chunker   *Chunker
	config    *config.IngestConfig
	extractor *extract.Extractor
	now       func() time.Time
	logger    *zap.Logger // optional
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) IndexerOption {
	return func(idx *Indexer) { idx.now = now }
}

// NewIndexer creates an indexer. extractor may be nil; IngestFile then reads files as UTF-8 text.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	cfg *config.IngestConfig,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:   store,
		embedder:  embedder,
		index:     index,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MaxChunks),
		config:    cfg,
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Upload validates, chunks, embeds and stores one document. The document ID is derived from
// the text, so uploading identical text twice fails with a duplicate error.
func (idx *Indexer) Upload(ctx context.Context, in models.UploadInput) (*models.UploadResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, apperr.Validation("document cannot be empty")
	}
	if idx.config.MaxFileBytes > 0 && int64(len(in.Text)) > idx.config.MaxFileBytes {
		return nil, apperr.Validation("document too large (max %d bytes)", idx.config.MaxFileBytes)
	}

	docID := docid.ContentID(in.Text)
	exists, err := idx.exists(ctx, docID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Duplicate("document already uploaded (ID: %s)", docID)
	}

	title := TitleFromFilename(in.Filename, idx.config.MaxTitleLength)
	chunks, err := idx.chunker.Chunk(docID, in.Text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, apperr.Validation("document empty after chunking")
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, apperr.External("embed chunks", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, apperr.External("embed chunks", fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks)))
	}

	if in.IsInterview {
		cleared, err := idx.index.UpdateMetadata(ctx,
			vector.Filter{models.MetaIsInterview: true},
			map[string]any{models.MetaIsInterview: false})
		if err != nil {
			return nil, apperr.External("clear interview flag", err)
		}
		if idx.logger != nil && cleared > 0 {
			idx.logger.Info("cleared previous interview flag", zap.Int("chunks", cleared))
		}
	}

	records := make([]vector.Record, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		c.Title = title
		c.IsInterview = in.IsInterview
		c.Embedding = embeddings[i]
		records[i] = vector.Record{ID: c.ID, Values: c.Embedding, Metadata: c.Metadata()}
	}
	stored, err := idx.index.Upsert(ctx, records)
	if err != nil {
		return nil, apperr.External("store vectors", err)
	}

	doc := &models.Document{
		ID:           docID,
		Title:        title,
		TotalChunks:  len(chunks),
		ContentBytes: int64(len(in.Text)),
		IsInterview:  in.IsInterview,
		Source:       in.Source,
		CreatedAt:    idx.now(),
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		// A concurrent upload of the same text wrote identical vectors; keep them.
		if errors.Is(err, storage.ErrDuplicateDocument) {
			return nil, apperr.Duplicate("document already uploaded (ID: %s)", docID)
		}
		if delErr := idx.index.Delete(ctx, vector.Filter{models.MetaDocumentID: docID}); delErr != nil && idx.logger != nil {
			idx.logger.Warn("failed to roll back vectors", zap.String("document_id", docID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to store document metadata: %w", err)
	}

	if idx.logger != nil {
		idx.logger.Info("document uploaded",
			zap.String("document_id", docID),
			zap.String("title", title),
			zap.Int("chunks", len(chunks)),
			zap.Bool("is_interview", in.IsInterview))
	}
	return &models.UploadResult{
		Message:       "Document uploaded successfully",
		DocumentID:    docID,
		Title:         title,
		ChunksCreated: stored,
		Status:        models.StatusSuccess,
	}, nil
}

func (idx *Indexer) exists(ctx context.Context, docID string) (bool, error) {
	inIndex, err := idx.index.Exists(ctx, vector.Filter{models.MetaDocumentID: docID})
	if err != nil {
		return false, apperr.External("check document", err)
	}
	if inIndex {
		return true, nil
	}
	inTable, err := idx.storage.DocumentExists(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("failed to check document metadata: %w", err)
	}
	return inTable, nil
}

// Delete removes all chunks of a document and its metadata row.
func (idx *Indexer) Delete(ctx context.Context, id string) (*models.MessageResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("document ID cannot be empty")
	}
	exists, err := idx.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("document not found (ID: %s)", id)
	}
	if err := idx.index.Delete(ctx, vector.Filter{models.MetaDocumentID: id}); err != nil {
		return nil, apperr.External("delete vectors", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
		return nil, fmt.Errorf("failed to delete document metadata: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Info("document deleted", zap.String("document_id", id))
	}
	return &models.MessageResponse{
		Message:    "Document deleted successfully",
		DocumentID: id,
		Status:     models.StatusSuccess,
	}, nil
}

// DeleteAll clears the vector index and the metadata table.
func (idx *Indexer) DeleteAll(ctx context.Context) (*models.MessageResponse, error) {
	if err := idx.index.DeleteAll(ctx); err != nil {
		return nil, apperr.External("clear vectors", err)
	}
	n, err := idx.storage.DeleteAllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clear document metadata: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Info("all documents cleared", zap.Int64("documents", n))
	}
	return &models.MessageResponse{
		Message: "All data cleared successfully",
		Status:  models.StatusSuccess,
	}, nil
}

// List returns one page of documents, newest first. page is 1-based.
func (idx *Indexer) List(ctx context.Context, page, limit int) (*models.DocumentPage, error) {
	if page < 1 {
		return nil, apperr.Validation("page must be >= 1")
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, apperr.Validation("limit must be between 1 and %d", MaxPageSize)
	}
	total, err := idx.storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	offset := (page - 1) * limit
	docs, err := idx.storage.ListDocuments(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return &models.DocumentPage{
		Documents: docs,
		Total:     total,
		Page:      page,
		Limit:     limit,
		HasMore:   int64(offset+limit) < total,
		Status:    models.StatusSuccess,
	}, nil
}

// IngestFile extracts the text of the file at path and uploads it with the file name as title.
// A file already ingested from the same path is replaced when its content changed and left
// alone when it did not.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*models.UploadResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !ExtensionAllowed(ext, idx.config.AllowedExtensions) {
		return nil, apperr.Validation("unsupported file type %q", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.Validation("not a regular file: %s", absPath)
	}

	text, err := idx.extractText(absPath)
	if err != nil {
		return nil, err
	}

	prev, err := idx.storage.GetDocumentBySource(ctx, absPath)
	if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
		return nil, fmt.Errorf("lookup by source: %w", err)
	}
	if prev != nil && prev.ID == docid.ContentID(text) {
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		}
		return &models.UploadResult{
			Message:       "Document unchanged",
			DocumentID:    prev.ID,
			Title:         prev.Title,
			ChunksCreated: 0,
			Status:        models.StatusSuccess,
		}, nil
	}

	// The previous version stays searchable until its replacement is stored.
	result, err := idx.Upload(ctx, models.UploadInput{
		Text:     text,
		Filename: filepath.Base(absPath),
		Source:   absPath,
	})
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if _, err := idx.Delete(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("failed to remove previous version %s: %w", prev.ID, err)
		}
	}
	return result, nil
}

// DeleteBySource deletes the document that was ingested from path.
func (idx *Indexer) DeleteBySource(ctx context.Context, path string) (*models.MessageResponse, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	doc, err := idx.storage.GetDocumentBySource(ctx, absPath)
	if errors.Is(err, storage.ErrDocumentNotFound) {
		return nil, apperr.NotFound("no document ingested from %s", absPath)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by source: %w", err)
	}
	return idx.Delete(ctx, doc.ID)
}

func (idx *Indexer) extractText(path string) (string, error) {
	if idx.extractor == nil {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}
	text, err := idx.extractor.Extract(path)
	if errors.Is(err, extract.ErrInvalidEncoding) || errors.Is(err, extract.ErrUnsupportedFormat) {
		return "", apperr.Validation("%v", err)
	}
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	return text, nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the leading dot.
// An empty list allows everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
