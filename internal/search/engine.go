// Package search implements retrieval: targeted lookups within one document and broad
// two-stage retrieval that expands the best candidate documents before re-ranking.
package search

import (
	"context"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine selects the chunks that ground an answer.
type Engine struct {
	embedder embedding.Embedder
	index    vector.Index
	config   *config.RetrievalConfig
	logger   *zap.Logger // optional
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for per-stage retrieval details.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(embedder embedding.Embedder, index vector.Index, cfg *config.RetrievalConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder: embedder,
		index:    index,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns at most context_size matches in descending score order. With a DocumentID it
// searches only that document and fails with a not-found error when the document has no chunks.
// Otherwise an empty result is valid and not an error.
func (e *Engine) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.Match, error) {
	if err := ProcessQuery(&q); err != nil {
		return nil, err
	}
	if q.DocumentID != "" {
		return e.retrieveTargeted(ctx, q)
	}
	return e.retrieveBroad(ctx, q)
}

func (e *Engine) retrieveTargeted(ctx context.Context, q models.RetrievalQuery) ([]models.Match, error) {
	filter := vector.Filter{models.MetaDocumentID: q.DocumentID}
	exists, err := e.index.Exists(ctx, filter)
	if err != nil {
		return nil, apperr.External("check document", err)
	}
	if !exists {
		return nil, apperr.NotFound("document not found (ID: %s)", q.DocumentID)
	}

	queryEmbedding, err := e.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, apperr.External("embed query", err)
	}
	results, err := e.index.Query(ctx, queryEmbedding, filter, e.config.TargetedTopK)
	if err != nil {
		return nil, apperr.External("query document", err)
	}
	if e.logger != nil {
		e.logger.Debug("targeted retrieval",
			zap.String("document_id", q.DocumentID),
			zap.Int("matches", len(results)))
	}
	return toMatches(results), nil
}

func (e *Engine) retrieveBroad(ctx context.Context, q models.RetrievalQuery) ([]models.Match, error) {
	queryEmbedding, err := e.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, apperr.External("embed query", err)
	}

	var filter vector.Filter
	if q.InterviewOnly {
		filter = vector.Filter{models.MetaIsInterview: true}
	}
	discovered, err := e.index.Query(ctx, queryEmbedding, filter, e.config.DiscoveryTopK)
	if err != nil {
		return nil, apperr.External("discovery query", err)
	}
	if len(discovered) == 0 {
		if e.logger != nil {
			e.logger.Debug("broad retrieval found no candidates", zap.Bool("interview_only", q.InterviewOnly))
		}
		return []models.Match{}, nil
	}

	docIDs := DistinctDocumentIDs(toMatches(discovered))
	if e.logger != nil {
		e.logger.Debug("broad retrieval discovery",
			zap.Int("matches", len(discovered)),
			zap.Strings("documents", docIDs))
	}

	pool, err := e.expand(ctx, queryEmbedding, docIDs)
	if err != nil {
		return nil, err
	}
	selected := SelectTop(pool, e.config.ContextSize)
	if e.logger != nil {
		e.logger.Debug("broad retrieval re-ranked",
			zap.Int("pool", len(pool)),
			zap.Int("selected", len(selected)))
	}
	return selected, nil
}

// expand fetches every chunk of each candidate document. All queries finish before it returns.
func (e *Engine) expand(ctx context.Context, queryEmbedding []float32, docIDs []string) ([]models.Match, error) {
	perDoc := make([][]vector.Match, len(docIDs))
	query := func(ctx context.Context, i int) error {
		results, err := e.index.Query(ctx, queryEmbedding,
			vector.Filter{models.MetaDocumentID: docIDs[i]}, e.config.ExpansionTopK)
		if err != nil {
			return apperr.External("expand document "+docIDs[i], err)
		}
		perDoc[i] = results
		if e.logger != nil {
			e.logger.Debug("expanded document",
				zap.String("document_id", docIDs[i]),
				zap.Int("chunks", len(results)))
		}
		return nil
	}

	if e.config.ConcurrentOrDefault() && len(docIDs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		if e.config.MaxConcurrency > 0 {
			g.SetLimit(e.config.MaxConcurrency)
		}
		for i := range docIDs {
			i := i
			g.Go(func() error { return query(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range docIDs {
			if err := query(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	var pool []models.Match
	for _, results := range perDoc {
		pool = append(pool, toMatches(results)...)
	}
	return pool, nil
}

func toMatches(results []vector.Match) []models.Match {
	out := make([]models.Match, len(results))
	for i, r := range results {
		out[i] = models.Match{
			Chunk: models.ChunkFromMetadata(r.ID, r.Metadata),
			Score: r.Score,
		}
	}
	return out
}

// VectorCount returns the number of chunk vectors in the index.
func (e *Engine) VectorCount(ctx context.Context) (int, error) {
	return e.index.Count(ctx)
}

// IndexType returns the vector index backend name.
func (e *Engine) IndexType() string {
	return e.index.Type()
}
