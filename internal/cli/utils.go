// Package cli provides output formatting for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

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

// previewChars bounds fragment content in text search output.
const previewChars = 200

// SearchOutput is the JSON shape of search results. It matches the HTTP
// API response so scripted callers can treat both the same way.
type SearchOutput struct {
	Query   string                   `json:"query"`
	Results []models.RetrievalResult `json:"results"`
	Total   int                      `json:"total"`
}

// WriteAnswer writes a pipeline answer to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteAnswer(w io.Writer, answer *models.QueryAnswer, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	fmt.Fprintf(w, "\n%s\n", answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, source := range answer.Sources {
			fmt.Fprintf(w, "  - %s\n", source)
		}
	}
	fmt.Fprintf(w, "\n(%d fragments retrieved, %d context chars)\n",
		answer.RetrievedCount, answer.ContextChars)
	return nil
}

// WriteSearchResults writes ranked retrieval results to w in the given format.
func WriteSearchResults(w io.Writer, query string, results []models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(SearchOutput{Query: query, Results: results, Total: len(results)})
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(results), query)
	for _, result := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", result.Rank, result.Similarity)
		fmt.Fprintf(w, "Source: %s (chunk %d of %d)\n",
			result.Fragment.SourceID, result.Fragment.ChunkIndex+1, result.Fragment.ChunkCount)
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Fragment.Content, previewChars))
		fmt.Fprintln(w)
	}
	return nil
}

// WriteSources writes the list of indexed source documents to w.
func WriteSources(w io.Writer, sources []string, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"sources": sources, "total": len(sources)})
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	for _, source := range sources {
		fmt.Fprintln(w, source)
	}
	return nil
}
