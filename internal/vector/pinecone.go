package vector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

const (
	pineconeUpsertBatch = 100
	pineconeMaxTopK     = 10000

	// Pinecone rejects larger topK values when metadata is returned.
	pineconeMaxTopKWithMetadata = 1000
)

// PineconeIndex talks to a Pinecone serverless index over its REST data plane.
type PineconeIndex struct {
	host       string
	apiKey     string
	apiVersion string
	namespace  string
	dimensions int
	http       *http.Client
	logger     *zap.Logger
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []pineconeMatch `json:"matches"`
}

// NewPineconeIndex connects to the index named in cfg. When cfg.Host is empty the host is
// resolved through the control plane.
func NewPineconeIndex(ctx context.Context, cfg config.PineconeConfig, dimensions int, timeout time.Duration, logger *zap.Logger) (*PineconeIndex, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &PineconeIndex{
		host:       cfg.Host,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		namespace:  cfg.Namespace,
		dimensions: dimensions,
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if strings.TrimSpace(p.host) == "" {
		host, err := p.describeIndex(ctx, cfg.ControlPlaneURL, cfg.IndexName)
		if err != nil {
			return nil, err
		}
		p.host = host
	}
	if logger != nil {
		logger.Info("pinecone index connected", zap.String("index", cfg.IndexName), zap.String("host", p.host))
	}
	return p, nil
}

func (p *PineconeIndex) header() http.Header {
	h := http.Header{}
	h.Set("Api-Key", p.apiKey)
	h.Set("X-Pinecone-Api-Version", p.apiVersion)
	return h
}

func (p *PineconeIndex) describeIndex(ctx context.Context, controlPlane, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("pinecone index name required")
	}
	type description struct {
		Host string `json:"host"`
	}
	url := strings.TrimRight(controlPlane, "/") + "/indexes/" + name
	out, err := doJSON[description](ctx, p.http, "pinecone", http.MethodGet, url, p.header(), nil)
	if err != nil {
		return "", fmt.Errorf("pinecone describe_index: %w", err)
	}
	if strings.TrimSpace(out.Host) == "" {
		return "", fmt.Errorf("pinecone describe_index returned empty host")
	}
	return out.Host, nil
}

func (p *PineconeIndex) url(path string) string {
	return baseURL(p.host) + path
}

// Type returns the index type identifier.
func (p *PineconeIndex) Type() string {
	return string(IndexTypePinecone)
}

// Upsert writes records in batches of 100.
func (p *PineconeIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	type upsertResponse struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	total := 0
	for start := 0; start < len(records); start += pineconeUpsertBatch {
		end := start + pineconeUpsertBatch
		if end > len(records) {
			end = len(records)
		}
		vectors := make([]pineconeVector, 0, end-start)
		for _, r := range records[start:end] {
			if len(r.Values) != p.dimensions {
				return total, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Values), p.dimensions)
			}
			vectors = append(vectors, pineconeVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata})
		}
		body := map[string]any{"vectors": vectors}
		if p.namespace != "" {
			body["namespace"] = p.namespace
		}
		out, err := doJSON[upsertResponse](ctx, p.http, "pinecone", http.MethodPost, p.url("/vectors/upsert"), p.header(), body)
		if err != nil {
			return total, err
		}
		total += out.UpsertedCount
	}
	return total, nil
}

// Query runs a filtered similarity query with metadata included. topK is capped at 1000.
func (p *PineconeIndex) Query(ctx context.Context, vec []float32, filter Filter, topK int) ([]Match, error) {
	if topK > pineconeMaxTopKWithMetadata {
		if p.logger != nil {
			p.logger.Debug("pinecone topK capped", zap.Int("requested", topK), zap.Int("max", pineconeMaxTopKWithMetadata))
		}
		topK = pineconeMaxTopKWithMetadata
	}
	return p.query(ctx, vec, filter, topK, true)
}

func (p *PineconeIndex) query(ctx context.Context, vec []float32, filter Filter, topK int, includeMetadata bool) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if topK > pineconeMaxTopK {
		topK = pineconeMaxTopK
	}
	body := map[string]any{
		"vector":          vec,
		"topK":            topK,
		"includeMetadata": includeMetadata,
	}
	if f := pineconeFilter(filter); f != nil {
		body["filter"] = f
	}
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	out, err := doJSON[pineconeQueryResponse](ctx, p.http, "pinecone", http.MethodPost, p.url("/query"), p.header(), body)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// Delete removes every vector matching filter.
func (p *PineconeIndex) Delete(ctx context.Context, filter Filter) error {
	if err := filter.validateNonEmpty(); err != nil {
		return err
	}
	body := map[string]any{"filter": pineconeFilter(filter)}
	return p.delete(ctx, body)
}

// DeleteAll removes every vector in the namespace.
func (p *PineconeIndex) DeleteAll(ctx context.Context) error {
	return p.delete(ctx, map[string]any{"deleteAll": true})
}

func (p *PineconeIndex) delete(ctx context.Context, body map[string]any) error {
	if p.namespace != "" {
		body["namespace"] = p.namespace
	}
	_, err := doJSON[map[string]any](ctx, p.http, "pinecone", http.MethodPost, p.url("/vectors/delete"), p.header(), body)
	return err
}

// Exists probes for one vector matching filter.
func (p *PineconeIndex) Exists(ctx context.Context, filter Filter) (bool, error) {
	matches, err := p.Query(ctx, probeVector(p.dimensions), filter, 1)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// UpdateMetadata finds the matching ids with an id-only query and updates them one by one.
func (p *PineconeIndex) UpdateMetadata(ctx context.Context, filter Filter, set map[string]any) (int, error) {
	matches, err := p.query(ctx, probeVector(p.dimensions), filter, pineconeMaxTopK, false)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, m := range matches {
		body := map[string]any{"id": m.ID, "setMetadata": set}
		if p.namespace != "" {
			body["namespace"] = p.namespace
		}
		if _, err := doJSON[map[string]any](ctx, p.http, "pinecone", http.MethodPost, p.url("/vectors/update"), p.header(), body); err != nil {
			return updated, fmt.Errorf("failed to update %s: %w", m.ID, err)
		}
		updated++
	}
	if p.logger != nil && updated > 0 {
		p.logger.Debug("pinecone metadata updated", zap.Int("count", updated))
	}
	return updated, nil
}

// Count returns the vector count of the namespace (or the whole index when no namespace is set).
func (p *PineconeIndex) Count(ctx context.Context) (int, error) {
	type stats struct {
		TotalVectorCount int `json:"totalVectorCount"`
		Namespaces       map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	out, err := doJSON[stats](ctx, p.http, "pinecone", http.MethodPost, p.url("/describe_index_stats"), p.header(), map[string]any{})
	if err != nil {
		return 0, err
	}
	if p.namespace != "" {
		return out.Namespaces[p.namespace].VectorCount, nil
	}
	return out.TotalVectorCount, nil
}

// Close is a no-op.
func (p *PineconeIndex) Close() error {
	return nil
}

func pineconeFilter(f Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}
