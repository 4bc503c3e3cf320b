package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the text of every readable page. Pages are joined with
// blank lines so page breaks survive as paragraph boundaries. A page that
// fails to parse is skipped; the document only fails when no page yields
// text and at least one page errored.
func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	var lastErr error
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			lastErr = fmt.Errorf("page %d: %w", i, err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && lastErr != nil {
		return "", fmt.Errorf("extract PDF: %w", lastErr)
	}
	return strings.Join(pages, "\n\n"), nil
}
