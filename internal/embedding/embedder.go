// Package embedding provides text embedding via ONNX and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations are
// stateless with respect to the produced vectors: they never store them.
// ModelID identifies the underlying model; the index records it so a
// collection embedded with one model is never queried with another.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}
