package chat

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
)

// Composition is the grounding prompt and provenance for one answer.
type Composition struct {
	SystemPrompt string
	Sources      []models.Source
	SourcesUsed  bool
}

// BuildContext joins the trimmed text of the n highest-scoring matches with blank lines.
// Matches with no text are skipped.
func BuildContext(matches []models.Match, n int) string {
	parts := make([]string, 0, n)
	for _, m := range search.SelectTop(matches, n) {
		if text := strings.TrimSpace(m.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Compose builds the system prompt from at most n matches and lists them as sources.
// An empty match list yields the bare persona prompt and no sources.
func Compose(matches []models.Match, n int) Composition {
	if len(matches) == 0 {
		return Composition{SystemPrompt: BuildSystemPrompt(""), Sources: []models.Source{}}
	}
	used := search.SelectTop(matches, n)
	sources := make([]models.Source, 0, len(used))
	for _, m := range used {
		if m.DocumentID == "" {
			continue
		}
		sources = append(sources, models.Source{
			DocumentID:  m.DocumentID,
			Title:       m.Title,
			ChunkNumber: m.ChunkNumber,
			Text:        m.Text,
		})
	}
	return Composition{
		SystemPrompt: BuildSystemPrompt(BuildContext(used, n)),
		Sources:      sources,
		SourcesUsed:  true,
	}
}
