// Package extract pulls plain text out of the document formats the ingest
// pipeline accepts.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor turns document files into plain text for chunking. Formats with
// visible structure (PDF pages, Word paragraphs, workbook sheets) keep that
// structure as blank-line separated blocks, so splitting can prefer
// paragraph boundaries later.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content. The format
// is chosen by extension; unknown extensions are treated as plain text.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext includes the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return pdfText(content)
	case ".docx":
		return docxText(content)
	case ".xlsx":
		return excelText(content)
	default:
		return plainText(content), nil
	}
}

// plainText returns content as a string with invalid UTF-8 sequences
// replaced by the replacement character.
func plainText(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}
