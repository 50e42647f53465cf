package search

import (
	"strings"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/models"
)

// ProcessQuery trims the query and rejects empty query text.
func ProcessQuery(q *models.RetrievalQuery) error {
	q.Query = strings.TrimSpace(q.Query)
	q.DocumentID = strings.TrimSpace(q.DocumentID)
	if q.Query == "" {
		return apperr.Validation("query cannot be empty")
	}
	return nil
}
