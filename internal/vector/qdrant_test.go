package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
)

type qdrantFake struct {
	mu      sync.Mutex
	exists  bool
	created int
	points  map[string]map[string]any
}

func (f *qdrantFake) matching(filter map[string]any) []string {
	var ids []string
	for id, payload := range f.points {
		ok := true
		if must, _ := filter["must"].([]any); must != nil {
			for _, c := range must {
				cond := c.(map[string]any)
				key := cond["key"].(string)
				want := cond["match"].(map[string]any)["value"]
				if normalizeValue(payload[key]) != normalizeValue(want) {
					ok = false
				}
			}
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func newQdrantFake(t *testing.T) (*qdrantFake, *httptest.Server) {
	f := &qdrantFake{points: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "qd-key" {
			t.Errorf("missing api-key header")
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		path := r.URL.Path
		switch {
		case path == "/collections/chunks" && r.Method == http.MethodGet:
			if !f.exists {
				http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
		case path == "/collections/chunks" && r.Method == http.MethodPut:
			f.exists = true
			f.created++
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		case path == "/collections/chunks" && r.Method == http.MethodDelete:
			f.exists = false
			f.points = map[string]map[string]any{}
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		case path == "/collections/chunks/points":
			for _, p := range body["points"].([]any) {
				pt := p.(map[string]any)
				f.points[pt["id"].(string)] = pt["payload"].(map[string]any)
			}
			_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
		case path == "/collections/chunks/points/search":
			filter, _ := body["filter"].(map[string]any)
			var result []map[string]any
			for _, id := range f.matching(filter) {
				result = append(result, map[string]any{"id": id, "score": 0.8, "payload": f.points[id]})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
		case path == "/collections/chunks/points/count":
			filter, _ := body["filter"].(map[string]any)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.matching(filter))}, "status": "ok"})
		case path == "/collections/chunks/points/payload":
			filter, _ := body["filter"].(map[string]any)
			set := body["payload"].(map[string]any)
			for _, id := range f.matching(filter) {
				for k, v := range set {
					f.points[id][k] = v
				}
			}
			_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
		case path == "/collections/chunks/points/delete":
			filter, _ := body["filter"].(map[string]any)
			for _, id := range f.matching(filter) {
				delete(f.points, id)
			}
			_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestQdrantIndex_roundTrip(t *testing.T) {
	ctx := context.Background()
	fake, srv := newQdrantFake(t)

	idx, err := NewQdrantIndex(ctx, config.QdrantConfig{URL: srv.URL + "/", APIKey: "qd-key", Collection: "chunks"}, 2, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fake.created != 1 {
		t.Errorf("collection should be created once, got %d", fake.created)
	}

	if _, err := idx.Upsert(ctx, []Record{
		chunkRecord("d1_chunk_0", "d1", true, 1, 0),
		chunkRecord("d2_chunk_0", "d2", false, 0, 1),
	}); err != nil {
		t.Fatal(err)
	}
	matches, err := idx.Query(ctx, []float32{1, 0}, Filter{"document_id": "d1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "d1_chunk_0" {
		t.Fatalf("matches = %+v", matches)
	}
	if _, ok := matches[0].Metadata[qdrantChunkIDKey]; ok {
		t.Error("chunk_id should not leak into metadata")
	}

	n, err := idx.UpdateMetadata(ctx, Filter{"is_interview": true}, map[string]any{"is_interview": false})
	if err != nil || n != 1 {
		t.Errorf("update = %d, %v", n, err)
	}
	if ok, _ := idx.Exists(ctx, Filter{"is_interview": true}); ok {
		t.Error("flag should be cleared")
	}
	if err := idx.Delete(ctx, Filter{"document_id": "d2"}); err != nil {
		t.Fatal(err)
	}
	if c, _ := idx.Count(ctx); c != 1 {
		t.Errorf("count = %d", c)
	}
	if err := idx.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	if c, _ := idx.Count(ctx); c != 0 || fake.created != 2 {
		t.Errorf("count = %d, created = %d", c, fake.created)
	}
}

func TestPointID_deterministic(t *testing.T) {
	a, b := PointID("abc_chunk_0"), PointID("abc_chunk_0")
	if a != b || strings.Count(a, "-") != 4 {
		t.Errorf("PointID = %s / %s", a, b)
	}
	if PointID("abc_chunk_1") == a {
		t.Error("different ids should differ")
	}
}
