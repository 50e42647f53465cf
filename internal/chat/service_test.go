package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/completion"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type stubRetriever struct {
	matches []models.Match
	err     error
	queries []models.RetrievalQuery
}

func (s *stubRetriever) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.Match, error) {
	s.queries = append(s.queries, q)
	return s.matches, s.err
}

func chatConfig() *config.ChatConfig {
	return &config.ChatConfig{MaxMessageLength: 1000, HistoryLimit: 2}
}

func TestService_Answer(t *testing.T) {
	r := &stubRetriever{matches: []models.Match{m("a", 0, "I built a search engine in Go.", 0.9)}}
	c := completion.NewMockCompleter()
	c.SetReply("I built a search engine.")
	svc := NewService(r, c, chatConfig())

	resp, err := svc.Answer(context.Background(), models.ChatRequest{Message: " What have you built? ", InterviewMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "I built a search engine." || resp.Status != models.StatusSuccess || !resp.SourcesUsed {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Text != "I built a search engine in Go." {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if len(r.queries) != 1 || r.queries[0].Query != "What have you built?" || !r.queries[0].InterviewOnly {
		t.Errorf("retrieval queries = %+v", r.queries)
	}
	calls := c.Calls()
	if len(calls) != 1 || calls[0].Message != "What have you built?" || len(calls[0].History) != 0 {
		t.Fatalf("completer calls = %+v", calls)
	}
	if !strings.Contains(calls[0].System, "CANDIDATE BACKGROUND:\nI built a search engine in Go.") {
		t.Errorf("system prompt missing context: %q", calls[0].System)
	}
}

func TestService_AnswerWithoutMatches(t *testing.T) {
	c := completion.NewMockCompleter()
	svc := NewService(&stubRetriever{}, c, chatConfig())
	resp, err := svc.Answer(context.Background(), models.ChatRequest{Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.SourcesUsed || len(resp.Sources) != 0 {
		t.Errorf("no matches should mean no sources: %+v", resp)
	}
	if calls := c.Calls(); len(calls) != 1 || calls[0].System != BuildSystemPrompt("") {
		t.Errorf("expected the bare prompt, got %+v", calls)
	}
}

func TestService_AnswerValidatesBeforeExternalCalls(t *testing.T) {
	r := &stubRetriever{}
	c := completion.NewMockCompleter()
	svc := NewService(r, c, chatConfig())

	for _, msg := range []string{"", "   ", strings.Repeat("a", 1001), strings.Repeat("a", 1000) + " "} {
		_, err := svc.Answer(context.Background(), models.ChatRequest{Message: msg})
		if !apperr.IsValidation(err) {
			t.Errorf("message of %d chars: expected validation error, got %v", len(msg), err)
		}
	}
	if len(r.queries) != 0 || len(c.Calls()) != 0 {
		t.Error("no external call should be made for invalid messages")
	}
}

func TestService_AnswerPropagatesErrors(t *testing.T) {
	r := &stubRetriever{err: apperr.NotFound("document not found (ID: x)")}
	c := completion.NewMockCompleter()
	svc := NewService(r, c, chatConfig())
	_, err := svc.Answer(context.Background(), models.ChatRequest{Message: "q", DocumentID: "x"})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if len(c.Calls()) != 0 {
		t.Error("completer should not be called when retrieval fails")
	}

	c.SetError(errors.New("timeout"))
	svc = NewService(&stubRetriever{}, c, chatConfig())
	_, err = svc.Answer(context.Background(), models.ChatRequest{Message: "q"})
	if !apperr.IsExternal(err) {
		t.Errorf("expected external service error, got %v", err)
	}
}

func TestService_AnswerWithHistoryKeepsLastTurns(t *testing.T) {
	c := completion.NewMockCompleter()
	svc := NewService(&stubRetriever{}, c, chatConfig())
	history := []models.ChatMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	if _, err := svc.AnswerWithHistory(context.Background(), models.ChatRequest{Message: "four"}, history); err != nil {
		t.Fatal(err)
	}
	calls := c.Calls()
	if len(calls) != 1 || len(calls[0].History) != 2 || calls[0].History[0].Content != "two" {
		t.Errorf("history passed = %+v", calls)
	}
}

func TestService_endToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	emb := embedding.NewMockEmbedder(64)
	index, _ := vector.NewMemoryIndex(64)
	defer index.Close()

	ingest := &config.IngestConfig{ChunkSize: 200, ChunkOverlap: 20, MaxFileBytes: 1 << 20, MaxTitleLength: 100, MaxChunks: 100}
	idx := indexer.NewIndexer(store, emb, index, ingest, nil)
	if _, err := idx.Upload(ctx, models.UploadInput{Text: "I have five years of Go and Kubernetes experience.", Filename: "resume.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upload(ctx, models.UploadInput{Text: "My favourite food is ramen.", Filename: "hobbies.txt"}); err != nil {
		t.Fatal(err)
	}

	retrieval := &config.RetrievalConfig{TargetedTopK: 5, DiscoveryTopK: 3, ExpansionTopK: 10000, ContextSize: 5}
	engine := search.NewEngine(emb, index, retrieval)
	c := completion.NewMockCompleter()
	svc := NewService(engine, c, chatConfig())

	resp, err := svc.Answer(ctx, models.ChatRequest{Message: "How much Go experience do you have?"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.SourcesUsed || len(resp.Sources) == 0 {
		t.Fatalf("expected sources, got %+v", resp)
	}
	if resp.Sources[0].Title != "resume" {
		t.Errorf("best source = %+v", resp.Sources[0])
	}

	_, err = svc.Answer(ctx, models.ChatRequest{Message: "q", DocumentID: "0000000000000000"})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found for unknown document, got %v", err)
	}
}
