// Package index provides the durable embedding index: a named collection of
// fragment vectors on local disk supporting nearest-neighbor queries.
package index

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Match is one nearest-neighbor hit: a stored fragment and its cosine
// distance (1 - cosine similarity) from the query embedding.
type Match struct {
	Fragment models.Fragment
	Distance float64
}

// Index stores fragment embeddings durably and serves nearest-neighbor
// queries. Implementations allow concurrent readers and serialize writers;
// every mutation is visible to subsequent reads as soon as it returns.
type Index interface {
	// Upsert inserts or replaces vectors by fragment identity key. The whole
	// batch fails with models.ErrDimensionMismatch when any embedding length
	// differs from the collection's established dimensionality; existing
	// entries are never touched by a failed batch.
	Upsert(ctx context.Context, vectors []models.IndexedVector) error
	// Query returns up to k matches ordered by ascending distance. An empty
	// collection yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)
	// Sources returns the distinct source IDs in the collection, sorted.
	Sources() []string
	// Clear removes every entry and the established dimensionality; the next
	// Upsert re-establishes it from its first batch.
	Clear(ctx context.Context) error
	Count() int
	Dimensions() int
	ModelID() string
	Close() error
}
