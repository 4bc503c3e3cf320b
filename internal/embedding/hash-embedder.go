package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/pkg/utils"
)

// HashEmbedderModelID identifies the hashed bag-of-words embedder in index metadata.
const HashEmbedderModelID = "hash-bow-v1"

// HashEmbedder is a deterministic embedder that buckets lowercased word
// hashes into a fixed-dimension count vector and L2-normalizes it. Texts
// sharing vocabulary get positive cosine similarity, so retrieval stays
// usable when no ONNX model is available. Also the embedder of choice in
// tests: same text, same vector, no model files.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a bag-of-words embedder with the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the normalized hashed bag-of-words vector for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range tokenizeWords(text) {
		emb[HashString(word)%e.dimensions]++
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the fixed identifier of the hash embedder.
func (e *HashEmbedder) ModelID() string {
	return HashEmbedderModelID
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

// tokenizeWords lowercases text and splits it into letter/digit runs,
// dropping punctuation so "modules?" and "modules" hash to the same bucket.
func tokenizeWords(text string) []string {
	var words []string
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		words = append(words, b.String())
	}
	return words
}
