package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// SQLiteIndex persists a named collection of fragment embeddings in a local
// SQLite database and mirrors it in memory for brute-force cosine scans.
// SQLite is the source of truth; the mirror is rebuilt on open and updated
// only after a transaction commits.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	modelID    string

	mu         sync.RWMutex
	dimensions int
	entries    []entry
	byKey      map[string]int
}

type entry struct {
	fragment  models.Fragment
	embedding []float32
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fragments (
	collection TEXT NOT NULL,
	source_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding BLOB NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, source_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_fragments_source ON fragments(collection, source_id);
`

// NewSQLiteIndex opens (or creates) the database at dbPath and loads the
// named collection into memory. Opening a collection that was embedded with
// a different model fails rather than mixing embedding spaces.
func NewSQLiteIndex(dbPath, collection, modelID string) (*SQLiteIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name is empty", models.ErrInvalidInput)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", models.ErrIndexUnavailable, err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", models.ErrIndexUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %v", models.ErrIndexUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", models.ErrIndexUnavailable, err)
	}

	idx := &SQLiteIndex{
		db:         db,
		collection: collection,
		modelID:    modelID,
		byKey:      make(map[string]int),
	}

	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// load reads the collection metadata and all stored fragments into the
// in-memory mirror.
func (s *SQLiteIndex) load() error {
	var storedModel string
	var dims int
	err := s.db.QueryRow(
		"SELECT model_id, dimensions FROM collections WHERE name = ?",
		s.collection,
	).Scan(&storedModel, &dims)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("%w: read collection metadata: %v", models.ErrIndexUnavailable, err)
	}

	if storedModel != s.modelID {
		return fmt.Errorf("%w: collection %q was embedded with model %q, configured model is %q",
			models.ErrIndexUnavailable, s.collection, storedModel, s.modelID)
	}
	s.dimensions = dims

	rows, err := s.db.Query(
		`SELECT source_id, chunk_index, chunk_count, content, embedding
		 FROM fragments WHERE collection = ?
		 ORDER BY source_id, chunk_index`,
		s.collection,
	)
	if err != nil {
		return fmt.Errorf("%w: load fragments: %v", models.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var frag models.Fragment
		var blob []byte
		if err := rows.Scan(&frag.SourceID, &frag.ChunkIndex, &frag.ChunkCount, &frag.Content, &blob); err != nil {
			return fmt.Errorf("%w: scan fragment: %v", models.ErrIndexUnavailable, err)
		}
		emb := bytesToEmbedding(blob)
		if len(emb) != s.dimensions {
			return fmt.Errorf("%w: fragment %s has %d dimensions, collection has %d",
				models.ErrIndexUnavailable, frag.Key(), len(emb), s.dimensions)
		}
		s.byKey[frag.Key()] = len(s.entries)
		s.entries = append(s.entries, entry{fragment: frag, embedding: emb})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: load fragments: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Upsert inserts or replaces the given vectors by fragment key inside a
// single transaction. Embeddings are unit-normalized before storage so
// queries reduce to dot products.
func (s *SQLiteIndex) Upsert(ctx context.Context, vectors []models.IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}

	dims := len(vectors[0].Embedding)
	if dims == 0 {
		return fmt.Errorf("%w: empty embedding for fragment %s", models.ErrDimensionMismatch, vectors[0].Key())
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if err := v.Fragment.Validate(); err != nil {
			return err
		}
		if len(v.Embedding) != dims {
			return fmt.Errorf("%w: fragment %s has %d dimensions, batch has %d",
				models.ErrDimensionMismatch, v.Key(), len(v.Embedding), dims)
		}
		emb := make([]float32, dims)
		copy(emb, v.Embedding)
		utils.NormalizeL2(emb)
		normalized[i] = emb
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	establishing := s.dimensions == 0
	if !establishing && dims != s.dimensions {
		return fmt.Errorf("%w: batch has %d dimensions, collection has %d",
			models.ErrDimensionMismatch, dims, s.dimensions)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	if establishing {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO collections (name, model_id, dimensions) VALUES (?, ?, ?)",
			s.collection, s.modelID, dims,
		); err != nil {
			return fmt.Errorf("%w: record collection metadata: %v", models.ErrIndexUnavailable, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO fragments
		 (collection, source_id, chunk_index, chunk_count, content, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("%w: prepare statement: %v", models.ErrIndexUnavailable, err)
	}
	defer stmt.Close()

	for i, v := range vectors {
		if _, err := stmt.ExecContext(ctx,
			s.collection, v.SourceID, v.ChunkIndex, v.ChunkCount, v.Content,
			embeddingToBytes(normalized[i]),
		); err != nil {
			return fmt.Errorf("%w: store fragment %s: %v", models.ErrIndexUnavailable, v.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", models.ErrIndexUnavailable, err)
	}

	// The transaction is durable, update the mirror.
	if establishing {
		s.dimensions = dims
	}
	for i, v := range vectors {
		e := entry{fragment: v.Fragment, embedding: normalized[i]}
		if pos, ok := s.byKey[v.Key()]; ok {
			s.entries[pos] = e
		} else {
			s.byKey[v.Key()] = len(s.entries)
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

// Query scans the collection for the k nearest fragments by cosine distance.
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []Match{}, nil
	}
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			models.ErrDimensionMismatch, len(embedding), s.dimensions)
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	utils.NormalizeL2(query)

	matches := make([]Match, 0, len(s.entries))
	for _, e := range s.entries {
		var dot float64
		for i, q := range query {
			dot += float64(q) * float64(e.embedding[i])
		}
		matches = append(matches, Match{Fragment: e.fragment, Distance: 1 - dot})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Fragment.Key() < matches[j].Fragment.Key()
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Sources returns the distinct source IDs currently indexed, sorted.
func (s *SQLiteIndex) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	sources := []string{}
	for _, e := range s.entries {
		if !seen[e.fragment.SourceID] {
			seen[e.fragment.SourceID] = true
			sources = append(sources, e.fragment.SourceID)
		}
	}
	sort.Strings(sources)
	return sources
}

// Clear removes every fragment and the collection metadata. The collection's
// dimensionality is re-established by the next Upsert.
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE collection = ?", s.collection); err != nil {
		return fmt.Errorf("%w: delete fragments: %v", models.ErrIndexUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", s.collection); err != nil {
		return fmt.Errorf("%w: delete collection metadata: %v", models.ErrIndexUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", models.ErrIndexUnavailable, err)
	}

	s.dimensions = 0
	s.entries = nil
	s.byKey = make(map[string]int)
	return nil
}

// Count returns the number of fragments in the collection.
func (s *SQLiteIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimensions returns the established dimensionality, or 0 before the first
// upsert.
func (s *SQLiteIndex) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// ModelID returns the embedding model the collection is bound to.
func (s *SQLiteIndex) ModelID() string {
	return s.modelID
}

// Close closes the underlying database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func embeddingToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func bytesToEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
