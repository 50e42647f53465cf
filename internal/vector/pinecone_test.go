package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
)

type pineconeFake struct {
	mu      sync.Mutex
	vectors map[string]pineconeVector
	updates []string
	deleted []map[string]any
	topKs   []int
}

func newPineconeFake(t *testing.T) (*pineconeFake, *httptest.Server) {
	f := &pineconeFake{vectors: map[string]pineconeVector{}}
	mux := http.NewServeMux()
	check := func(r *http.Request) {
		if r.Header.Get("Api-Key") != "pc-key" || r.Header.Get("X-Pinecone-Api-Version") != "2025-10" {
			t.Errorf("missing pinecone headers on %s", r.URL.Path)
		}
	}
	mux.HandleFunc("/indexes/interview-bot", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		host := "http://" + r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "interview-bot", "host": host})
	})
	mux.HandleFunc("/vectors/upsert", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body struct {
			Vectors []pineconeVector `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, v := range body.Vectors {
			f.vectors[v.ID] = v
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"upsertedCount": len(body.Vectors)})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body struct {
			TopK            int                       `json:"topK"`
			IncludeMetadata bool                      `json:"includeMetadata"`
			Filter          map[string]map[string]any `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.TopK > 10000 || (body.IncludeMetadata && body.TopK > 1000) {
			http.Error(w, `{"message":"topK too large"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.topKs = append(f.topKs, body.TopK)
		matches := []pineconeMatch{}
		for id, v := range f.vectors {
			ok := true
			for k, cond := range body.Filter {
				if normalizeValue(v.Metadata[k]) != normalizeValue(cond["$eq"]) {
					ok = false
				}
			}
			if ok && len(matches) < body.TopK {
				m := pineconeMatch{ID: id, Score: 0.5}
				if body.IncludeMetadata {
					m.Metadata = v.Metadata
				}
				matches = append(matches, m)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": matches})
	})
	mux.HandleFunc("/vectors/update", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID          string         `json:"id"`
			SetMetadata map[string]any `json:"setMetadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		v := f.vectors[body.ID]
		for k, val := range body.SetMetadata {
			v.Metadata[k] = val
		}
		f.vectors[body.ID] = v
		f.updates = append(f.updates, body.ID)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/vectors/delete", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.deleted = append(f.deleted, body)
		if body["deleteAll"] == true {
			f.vectors = map[string]pineconeVector{}
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/describe_index_stats", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		n := len(f.vectors)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"totalVectorCount": n})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestPineconeIndex_roundTrip(t *testing.T) {
	ctx := context.Background()
	fake, srv := newPineconeFake(t)

	idx, err := NewPineconeIndex(ctx, config.PineconeConfig{
		APIKey:          "pc-key",
		IndexName:       "interview-bot",
		APIVersion:      "2025-10",
		ControlPlaneURL: srv.URL,
	}, 2, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Type() != "pinecone" {
		t.Errorf("type = %s", idx.Type())
	}

	n, err := idx.Upsert(ctx, []Record{
		chunkRecord("a", "d1", true, 1, 0),
		chunkRecord("b", "d1", true, 0, 1),
		chunkRecord("c", "d2", false, 1, 1),
	})
	if err != nil || n != 3 {
		t.Fatalf("upsert = %d, %v", n, err)
	}
	ok, err := idx.Exists(ctx, Filter{"document_id": "d2"})
	if err != nil || !ok {
		t.Errorf("exists = %v, %v", ok, err)
	}
	updated, err := idx.UpdateMetadata(ctx, Filter{"is_interview": true}, map[string]any{"is_interview": false})
	if err != nil || updated != 2 || len(fake.updates) != 2 {
		t.Errorf("updated = %d (%v), calls = %v", updated, err, fake.updates)
	}
	if count, _ := idx.Count(ctx); count != 3 {
		t.Errorf("count = %d", count)
	}
	if err := idx.Delete(ctx, Filter{"document_id": "d1"}); err != nil {
		t.Fatal(err)
	}
	filter, _ := fake.deleted[0]["filter"].(map[string]any)
	if cond, _ := filter["document_id"].(map[string]any); cond["$eq"] != "d1" {
		t.Errorf("delete body = %v", fake.deleted[0])
	}
	if err := idx.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	if count, _ := idx.Count(ctx); count != 0 {
		t.Errorf("count after DeleteAll = %d", count)
	}
}

func TestPineconeIndex_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	idx, err := NewPineconeIndex(context.Background(), config.PineconeConfig{APIKey: "x", Host: srv.URL}, 2, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = idx.Query(context.Background(), []float32{1, 0}, nil, 3)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPineconeIndex_queryCapsTopKWithMetadata(t *testing.T) {
	ctx := context.Background()
	fake, srv := newPineconeFake(t)
	idx, err := NewPineconeIndex(ctx, config.PineconeConfig{APIKey: "pc-key", APIVersion: "2025-10", Host: srv.URL}, 2, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(ctx, []Record{chunkRecord("a", "d1", true, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, Filter{"document_id": "d1"}, 10000)
	if err != nil {
		t.Fatalf("expansion-sized query: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata["document_id"] != "d1" {
		t.Errorf("matches = %+v", matches)
	}
	updated, err := idx.UpdateMetadata(ctx, Filter{"is_interview": true}, map[string]any{"is_interview": false})
	if err != nil || updated != 1 {
		t.Errorf("updated = %d, %v", updated, err)
	}
	if len(fake.topKs) != 2 || fake.topKs[0] != 1000 || fake.topKs[1] != 10000 {
		t.Errorf("topK sent = %v, want [1000 10000]", fake.topKs)
	}
}
