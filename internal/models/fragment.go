// Package models defines core data structures for fragments, retrieval results, and answers.
package models

import "fmt"

// Fragment is a unit of indexed text: one chunk of a source document
// plus its position within that document.
type Fragment struct {
	Content    string `json:"content"`
	SourceID   string `json:"source_id"`
	ChunkIndex int    `json:"chunk_index"`
	ChunkCount int    `json:"chunk_count"`
}

// Key returns the identity key of the fragment. Two fragments with the
// same key refer to the same position of the same source; upserting a
// fragment replaces any previous entry with the same key.
func (f *Fragment) Key() string {
	return fmt.Sprintf("%s_%d", f.SourceID, f.ChunkIndex)
}

// Validate checks the positional invariants of the fragment.
func (f *Fragment) Validate() error {
	if f.Content == "" {
		return fmt.Errorf("fragment %s: %w: empty content", f.Key(), ErrInvalidInput)
	}
	if f.SourceID == "" {
		return fmt.Errorf("fragment: %w: empty source id", ErrInvalidInput)
	}
	if f.ChunkIndex < 0 || f.ChunkCount < 1 || f.ChunkIndex >= f.ChunkCount {
		return fmt.Errorf("fragment %s: %w: chunk index %d out of range for count %d",
			f.Key(), ErrInvalidInput, f.ChunkIndex, f.ChunkCount)
	}
	return nil
}

// IndexedVector is a fragment together with its embedding. The embedding
// dimensionality is fixed per index instance; it is never serialized to
// JSON because the vectors are large and meaningless to API consumers.
type IndexedVector struct {
	Fragment
	Embedding []float32 `json:"-"`
}
