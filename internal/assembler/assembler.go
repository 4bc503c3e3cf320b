// Package assembler formats ranked retrieval results into the bounded
// grounding context handed to the completion backend.
package assembler

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	blockDelimiter   = "\n\n---\n\n"
	truncationMarker = "\n[context truncated]"
)

// DefaultMaxChars bounds the assembled context when no budget is configured.
const DefaultMaxChars = 4000

// Assembler renders retrieval results into a single attributed text block
// bounded by a rune budget.
type Assembler struct {
	maxChars int
}

func New(maxChars int) *Assembler {
	if maxChars < 1 {
		maxChars = DefaultMaxChars
	}
	return &Assembler{maxChars: maxChars}
}

// Assemble emits one labeled block per result, in input order, joined by a
// fixed delimiter. When the rendered text exceeds the budget it is cut at a
// rune boundary, ellipsized and suffixed with the truncation marker, so the
// output never exceeds the budget plus those two tails.
func (a *Assembler) Assemble(results []models.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source: %s, relevance: %.2f]\n%s",
			r.Fragment.SourceID, r.Similarity, r.Fragment.Content)
	}

	full := strings.Join(blocks, blockDelimiter)
	if len([]rune(full)) <= a.maxChars {
		return full
	}
	return utils.Truncate(full, a.maxChars) + truncationMarker
}

// MaxChars returns the configured context budget.
func (a *Assembler) MaxChars() int {
	return a.maxChars
}
