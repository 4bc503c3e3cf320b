// Package retriever turns text into index operations: queries are embedded
// and matched against the collection, fragments are embedded and stored.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/models"
)

// Retriever pairs an embedder with an index so callers deal only in text.
type Retriever struct {
	embedder embedding.Embedder
	index    index.Index
	logger   *zap.Logger
}

func New(embedder embedding.Embedder, idx index.Index, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    idx,
		logger:   logger,
	}
}

// Search embeds the query and returns the k nearest fragments ranked by
// descending similarity. A blank query or an empty index yields an empty
// result without touching the embedder.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.RetrievalResult{}, nil
	}
	if r.index.Count() == 0 {
		return []models.RetrievalResult{}, nil
	}

	r.logger.Debug("executing vector search",
		zap.String("query", query),
		zap.Int("k", k))

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.index.Query(ctx, emb, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]models.RetrievalResult, len(matches))
	for i, m := range matches {
		results[i] = models.RetrievalResult{
			Fragment:   m.Fragment,
			Similarity: 1 - m.Distance,
			Rank:       i + 1,
		}
	}

	r.logger.Debug("vector search complete", zap.Int("matches", len(results)))
	return results, nil
}

// Ingest embeds the fragments in one batch and upserts them into the index.
// It returns the number of fragments stored.
func (r *Retriever) Ingest(ctx context.Context, fragments []models.Fragment) (int, error) {
	if len(fragments) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Content
	}

	embeddings, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed fragments: %w", err)
	}
	if len(embeddings) != len(fragments) {
		return 0, fmt.Errorf("embedder returned %d embeddings for %d fragments",
			len(embeddings), len(fragments))
	}

	vectors := make([]models.IndexedVector, len(fragments))
	for i, f := range fragments {
		vectors[i] = models.IndexedVector{Fragment: f, Embedding: embeddings[i]}
	}

	if err := r.index.Upsert(ctx, vectors); err != nil {
		return 0, fmt.Errorf("upsert fragments: %w", err)
	}

	r.logger.Debug("fragments ingested", zap.Int("count", len(vectors)))
	return len(vectors), nil
}
