package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/openai"
	"go.uber.org/zap"
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint in batches.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	logger     *zap.Logger
}

// NewOpenAIEmbedder returns an embedder for cfg.Model. Fails when no API key is configured.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("failed to create openai embedder: %w", openai.ErrMissingAPIKey)
	}
	client := openai.NewClient(cfg.BaseURL, cfg.APIKey,
		openai.WithTimeout(cfg.Timeout),
		openai.WithRateLimit(cfg.RequestsPerSecond),
		openai.WithLogger(logger))
	return newOpenAIEmbedder(client, cfg.Model, cfg.Dimensions, cfg.BatchSize, logger), nil
}

func newOpenAIEmbedder(client *openai.Client, model string, dimensions, batchSize int, logger *zap.Logger) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order, splitting into requests of at most batchSize inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("cannot embed empty text at position %d", i)
		}
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.client.Embeddings(ctx, e.model, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		for _, v := range vecs {
			if e.dimensions > 0 && len(v) != e.dimensions {
				return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), e.dimensions)
			}
		}
		out = append(out, vecs...)
		if e.logger != nil {
			e.logger.Debug("embedded batch", zap.Int("start", start), zap.Int("size", end-start))
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
