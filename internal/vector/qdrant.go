package vector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// qdrantChunkIDKey holds the caller's record id; Qdrant point ids must be integers or UUIDs.
const qdrantChunkIDKey = "chunk_id"

var qdrantIDNamespace = uuid.MustParse("6f1c1f0e-5b1a-4c55-9d0b-2a8f7e0c4b31")

// QdrantIndex stores vectors in a Qdrant collection using cosine distance.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	http       *http.Client
	logger     *zap.Logger
}

type qdrantEnvelope[T any] struct {
	Result T       `json:"result"`
	Status any     `json:"status"`
	Time   float64 `json:"time"`
}

type qdrantScoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantCount struct {
	Count int `json:"count"`
}

// NewQdrantIndex connects to cfg.URL and creates the collection when it does not exist.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimensions int, timeout time.Duration, logger *zap.Logger) (*QdrantIndex, error) {
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection name required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	q := &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: dimensions,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) header() http.Header {
	h := http.Header{}
	if q.apiKey != "" {
		h.Set("api-key", q.apiKey)
	}
	return h
}

func (q *QdrantIndex) collectionURL(suffix string) string {
	return q.url + "/collections/" + q.collection + suffix
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	_, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodGet, q.collectionURL(""), q.header(), nil)
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	return q.createCollection(ctx)
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimensions,
			"distance": "Cosine",
		},
	}
	if _, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodPut, q.collectionURL(""), q.header(), body); err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	if q.logger != nil {
		q.logger.Info("qdrant collection created", zap.String("collection", q.collection), zap.Int("dimensions", q.dimensions))
	}
	return nil
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// PointID maps a record id to its deterministic Qdrant point UUID.
func PointID(recordID string) string {
	return uuid.NewSHA1(qdrantIDNamespace, []byte(recordID)).String()
}

// Upsert writes records and waits for the operation to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	points := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if len(r.Values) != q.dimensions {
			return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Values), q.dimensions)
		}
		payload := copyMetadata(r.Metadata)
		payload[qdrantChunkIDKey] = r.ID
		points = append(points, map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Values,
			"payload": payload,
		})
	}
	body := map[string]any{"points": points}
	if _, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodPut, q.collectionURL("/points?wait=true"), q.header(), body); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Query searches the collection with filter translated to must-match conditions.
func (q *QdrantIndex) Query(ctx context.Context, vec []float32, filter Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	out, err := doJSON[qdrantEnvelope[[]qdrantScoredPoint]](ctx, q.http, "qdrant", http.MethodPost, q.collectionURL("/points/search"), q.header(), body)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Result))
	for _, p := range out.Result {
		md := copyMetadata(p.Payload)
		id, _ := md[qdrantChunkIDKey].(string)
		if id == "" {
			id = fmt.Sprint(p.ID)
		}
		delete(md, qdrantChunkIDKey)
		matches = append(matches, Match{ID: id, Score: p.Score, Metadata: md})
	}
	return matches, nil
}

// Delete removes every point matching filter.
func (q *QdrantIndex) Delete(ctx context.Context, filter Filter) error {
	if err := filter.validateNonEmpty(); err != nil {
		return err
	}
	body := map[string]any{"filter": qdrantFilter(filter)}
	_, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodPost, q.collectionURL("/points/delete?wait=true"), q.header(), body)
	return err
}

// DeleteAll drops and recreates the collection.
func (q *QdrantIndex) DeleteAll(ctx context.Context) error {
	if _, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodDelete, q.collectionURL(""), q.header(), nil); err != nil {
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
			return err
		}
	}
	return q.createCollection(ctx)
}

// Exists reports whether at least one point matches filter.
func (q *QdrantIndex) Exists(ctx context.Context, filter Filter) (bool, error) {
	n, err := q.count(ctx, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateMetadata sets payload keys on every matching point.
func (q *QdrantIndex) UpdateMetadata(ctx context.Context, filter Filter, set map[string]any) (int, error) {
	n, err := q.count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	body := map[string]any{"payload": set}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	if _, err := doJSON[map[string]any](ctx, q.http, "qdrant", http.MethodPost, q.collectionURL("/points/payload?wait=true"), q.header(), body); err != nil {
		return 0, err
	}
	return n, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	return q.count(ctx, nil)
}

func (q *QdrantIndex) count(ctx context.Context, filter Filter) (int, error) {
	body := map[string]any{"exact": true}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}
	out, err := doJSON[qdrantEnvelope[qdrantCount]](ctx, q.http, "qdrant", http.MethodPost, q.collectionURL("/points/count"), q.header(), body)
	if err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

// Close is a no-op.
func (q *QdrantIndex) Close() error {
	return nil
}

func qdrantFilter(f Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(f))
	for k, v := range f {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
	}
	return map[string]any{"must": must}
}
