// Package cli formats server responses for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a chat response and the sources it was grounded on.
func WriteAnswer(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n", resp.Response)
	if !resp.SourcesUsed || len(resp.Sources) == 0 {
		fmt.Fprintln(w, "\n(no sources used)")
		return nil
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(resp.Sources))
	for i, s := range resp.Sources {
		fmt.Fprintf(w, "  %d. %s [chunk %d] %s\n", i+1, s.Title, s.ChunkNumber, s.DocumentID)
		if s.Text != "" {
			fmt.Fprintf(w, "     %s\n", utils.Truncate(oneLine(s.Text), 120))
		}
	}
	return nil
}

// WriteDocuments writes one page of the document listing.
func WriteDocuments(w io.Writer, page *models.DocumentPage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, page)
	}
	if len(page.Documents) == 0 {
		fmt.Fprintf(w, "No documents (total %d)\n", page.Total)
		return nil
	}
	fmt.Fprintf(w, "Documents %d of %d (page %d, limit %d)\n\n", len(page.Documents), page.Total, page.Page, page.Limit)
	for _, d := range page.Documents {
		marker := ""
		if d.IsInterview {
			marker = " [interview]"
		}
		fmt.Fprintf(w, "%s  %-40s %4d chunks  %s%s\n",
			d.ID, utils.Truncate(d.Title, 37), d.TotalChunks, d.CreatedAt.Format("2006-01-02 15:04"), marker)
	}
	if page.HasMore {
		fmt.Fprintf(w, "\nMore documents available: use --page %d\n", page.Page+1)
	}
	return nil
}

// WriteUploadResult writes the outcome of one upload.
func WriteUploadResult(w io.Writer, filename string, res *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s: %s (ID: %s, title: %q, chunks: %d)\n",
		filename, res.Message, res.DocumentID, res.Title, res.ChunksCreated)
	return nil
}

// WriteStatus writes the server status map with keys sorted.
func WriteStatus(w io.Writer, status map[string]any, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := status[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s:\n", k)
			sub := make([]string, 0, len(v))
			for sk := range v {
				sub = append(sub, sk)
			}
			sort.Strings(sub)
			for _, sk := range sub {
				fmt.Fprintf(w, "  %s: %v\n", sk, formatValue(v[sk]))
			}
		default:
			fmt.Fprintf(w, "%s: %v\n", k, formatValue(v))
		}
	}
	return nil
}

// formatValue prints whole JSON numbers without a decimal point.
func formatValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
