package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/docid"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/xuri/excelize/v2"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".rst", nil, true},
	}
	for _, tt := range tests {
		got := ExtensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

type testEnv struct {
	idx   *Indexer
	store *storage.SQLiteStorage
	index *vector.MemoryIndex
}

func newTestEnv(t *testing.T, dir string) *testEnv {
	t.Helper()
	cfg := &config.IngestConfig{
		ChunkSize:         40,
		ChunkOverlap:      10,
		MaxFileBytes:      1024,
		MaxTitleLength:    100,
		MaxChunks:         100,
		AllowedExtensions: []string{".txt", ".md", ".xlsx"},
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	embedder := embedding.NewMockEmbedder(32)
	t.Cleanup(func() { _ = embedder.Close() })
	vecIndex, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vecIndex.Close() })
	return &testEnv{
		idx:   NewIndexer(store, embedder, vecIndex, cfg, extract.NewExtractor()),
		store: store,
		index: vecIndex,
	}
}

func interviewChunks(t *testing.T, index vector.Index) map[string]bool {
	t.Helper()
	matches, err := index.Query(context.Background(), make([]float32, 32), vector.Filter{models.MetaIsInterview: true}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	docs := map[string]bool{}
	for _, m := range matches {
		docs[models.ChunkFromMetadata(m.ID, m.Metadata).DocumentID] = true
	}
	return docs
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	text := strings.Repeat("Go developer with Kubernetes experience. ", 4)

	res, err := env.idx.Upload(ctx, models.UploadInput{Text: text, Filename: "resume.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if res.DocumentID != docid.ContentID(text) {
		t.Errorf("document id = %s", res.DocumentID)
	}
	if res.Title != "resume" || res.Status != models.StatusSuccess || res.ChunksCreated < 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	n, _ := env.index.Count(ctx)
	if n != res.ChunksCreated {
		t.Errorf("index count = %d, want %d", n, res.ChunksCreated)
	}
	doc, err := env.store.GetDocument(ctx, res.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.TotalChunks != res.ChunksCreated || doc.ContentBytes != int64(len(text)) {
		t.Errorf("unexpected metadata row: %+v", doc)
	}
}

func TestUpload_duplicate(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	in := models.UploadInput{Text: "Same content", Filename: "a.txt"}
	if _, err := env.idx.Upload(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Filename = "b.txt"
	_, err := env.idx.Upload(ctx, in)
	if !apperr.IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if !strings.Contains(err.Error(), docid.ContentID("Same content")) {
		t.Errorf("error should name the document id: %v", err)
	}

	first := docid.ContentID("Same content")
	res, err := env.idx.Upload(ctx, models.UploadInput{Text: "Same content.", Filename: "c.txt"})
	if err != nil {
		t.Fatalf("content differing by one character should upload: %v", err)
	}
	if res.DocumentID == first {
		t.Error("content differing by one character should get a distinct document id")
	}
	if n, _ := env.store.CountDocuments(ctx); n != 2 {
		t.Errorf("document count = %d, want 2", n)
	}
}

func TestUpload_validation(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"too large", strings.Repeat("a", 1025)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.idx.Upload(ctx, models.UploadInput{Text: tt.text, Filename: "x.txt"})
			if !apperr.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if n, _ := env.index.Count(ctx); n != 0 {
		t.Errorf("rejected uploads should not write vectors, count = %d", n)
	}
}

func TestUpload_singleInterviewDocument(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	first, err := env.idx.Upload(ctx, models.UploadInput{Text: "First interview answers", IsInterview: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := interviewChunks(t, env.index); !got[first.DocumentID] || len(got) != 1 {
		t.Fatalf("interview docs after first upload = %v", got)
	}
	second, err := env.idx.Upload(ctx, models.UploadInput{Text: "Second interview answers", IsInterview: true})
	if err != nil {
		t.Fatal(err)
	}
	got := interviewChunks(t, env.index)
	if len(got) != 1 || !got[second.DocumentID] {
		t.Errorf("only the newest upload should be flagged, got %v", got)
	}
	doc, err := env.store.GetDocument(ctx, first.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.IsInterview {
		t.Error("metadata row of the first document should be unflagged")
	}
	if second.Title != "Untitled" {
		t.Errorf("title without filename = %q", second.Title)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	a, _ := env.idx.Upload(ctx, models.UploadInput{Text: "Document A", Filename: "a.txt"})
	b, _ := env.idx.Upload(ctx, models.UploadInput{Text: "Document B", Filename: "b.txt"})

	res, err := env.idx.Delete(ctx, a.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if res.DocumentID != a.DocumentID || res.Status != models.StatusSuccess {
		t.Errorf("unexpected response: %+v", res)
	}
	if ok, _ := env.index.Exists(ctx, vector.Filter{models.MetaDocumentID: a.DocumentID}); ok {
		t.Error("chunks of A should be gone")
	}
	if ok, _ := env.index.Exists(ctx, vector.Filter{models.MetaDocumentID: b.DocumentID}); !ok {
		t.Error("chunks of B should remain")
	}

	_, err = env.idx.Delete(ctx, a.DocumentID)
	if !apperr.IsNotFound(err) {
		t.Errorf("second delete: expected not found, got %v", err)
	}
	_, err = env.idx.Delete(ctx, "  ")
	if !apperr.IsValidation(err) {
		t.Errorf("blank id: expected validation error, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		if _, err := env.idx.Upload(ctx, models.UploadInput{Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.idx.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := env.index.Count(ctx); n != 0 {
		t.Errorf("index count = %d", n)
	}
	if n, _ := env.store.CountDocuments(ctx); n != 0 {
		t.Errorf("document count = %d", n)
	}
	// Clearing an empty store succeeds.
	if _, err := env.idx.DeleteAll(ctx); err != nil {
		t.Error(err)
	}
}

func TestList(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	ctx := context.Background()
	for _, text := range []string{"alpha", "beta", "gamma"} {
		if _, err := env.idx.Upload(ctx, models.UploadInput{Text: text, Filename: text + ".txt"}); err != nil {
			t.Fatal(err)
		}
	}
	page, err := env.idx.List(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Documents) != 2 || !page.HasMore {
		t.Errorf("page 1: %+v", page)
	}
	page, err = env.idx.List(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Documents) != 1 || page.HasMore {
		t.Errorf("page 2: %+v", page)
	}

	for _, bad := range [][2]int{{0, 10}, {1, 0}, {1, MaxPageSize + 1}} {
		if _, err := env.idx.List(ctx, bad[0], bad[1]); !apperr.IsValidation(err) {
			t.Errorf("List(%d, %d): expected validation error, got %v", bad[0], bad[1], err)
		}
	}
}

func TestIngestFile_createUpdateAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(fPath, []byte("Hello world content."), 0600); err != nil {
		t.Fatal(err)
	}
	first, err := env.idx.IngestFile(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := env.store.GetDocument(ctx, first.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "notes" || doc.Source != fPath {
		t.Errorf("unexpected doc: %+v", doc)
	}

	again, err := env.idx.IngestFile(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	if again.DocumentID != first.DocumentID || again.ChunksCreated != 0 {
		t.Errorf("unchanged file should be skipped: %+v", again)
	}

	if err := os.WriteFile(fPath, []byte("Updated content."), 0600); err != nil {
		t.Fatal(err)
	}
	updated, err := env.idx.IngestFile(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	if updated.DocumentID == first.DocumentID {
		t.Error("changed content should produce a new document id")
	}
	if ok, _ := env.store.DocumentExists(ctx, first.DocumentID); ok {
		t.Error("previous version should be deleted")
	}
	if n, _ := env.store.CountDocuments(ctx); n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}
}

func TestIngestFile_failedUpdateKeepsPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(fPath, []byte("Hello world content."), 0600); err != nil {
		t.Fatal(err)
	}
	first, err := env.idx.IngestFile(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	before, err := env.index.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(fPath, []byte(strings.Repeat("a", 4000)), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.idx.IngestFile(ctx, fPath); !apperr.IsValidation(err) {
		t.Fatalf("oversized update: expected validation error, got %v", err)
	}
	if ok, _ := env.store.DocumentExists(ctx, first.DocumentID); !ok {
		t.Error("previous version should survive a failed update")
	}
	if after, _ := env.index.Count(ctx); after != before {
		t.Errorf("vector count = %d, want %d", after, before)
	}
	doc, err := env.store.GetDocumentBySource(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != first.DocumentID {
		t.Errorf("source maps to %s, want %s", doc.ID, first.DocumentID)
	}
}

func TestIngestFile_errors(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)
	ctx := context.Background()

	script := filepath.Join(dir, "script.sh")
	if err := os.WriteFile(script, []byte("#!/bin/bash"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.idx.IngestFile(ctx, script); !apperr.IsValidation(err) {
		t.Errorf("disallowed extension: got %v", err)
	}

	binary := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(binary, []byte{0xff, 0xfe, 0xfd}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.idx.IngestFile(ctx, binary); !apperr.IsValidation(err) {
		t.Errorf("invalid encoding: got %v", err)
	}

	if _, err := env.idx.IngestFile(ctx, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}

	sub := filepath.Join(dir, "folder.txt")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := env.idx.IngestFile(ctx, sub); err == nil {
		t.Error("expected error for directory")
	}
}

func TestIngestFile_excel(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)

	fPath := filepath.Join(dir, "skills.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Go")
	f.SetCellValue("Sheet1", "B1", "Kubernetes")
	if err := f.SaveAs(fPath); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	res, err := env.idx.IngestFile(context.Background(), fPath)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Title != "skills" || res.ChunksCreated != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestDeleteBySource(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(fPath, []byte("Some text"), 0600); err != nil {
		t.Fatal(err)
	}
	res, err := env.idx.IngestFile(ctx, fPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.idx.DeleteBySource(ctx, fPath); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.store.DocumentExists(ctx, res.DocumentID); ok {
		t.Error("document should be deleted")
	}
	if _, err := env.idx.DeleteBySource(ctx, fPath); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
