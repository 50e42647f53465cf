package search

import (
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// SelectTop returns the n highest-scoring matches in descending score order.
// The input slice is not modified.
func SelectTop(matches []models.Match, n int) []models.Match {
	sorted := make([]models.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// DistinctDocumentIDs returns the document ids of matches without duplicates, in first-seen order.
func DistinctDocumentIDs(matches []models.Match) []string {
	seen := make(map[string]struct{}, len(matches))
	var ids []string
	for _, m := range matches {
		if m.DocumentID == "" {
			continue
		}
		if _, ok := seen[m.DocumentID]; ok {
			continue
		}
		seen[m.DocumentID] = struct{}{}
		ids = append(ids, m.DocumentID)
	}
	return ids
}
