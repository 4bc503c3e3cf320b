// Package ingest walks document trees and feeds their text through the
// extract, chunk, embed and upsert pipeline.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/retriever"
)

// Ingestor turns document files into indexed fragments. The source ID of
// every fragment is the file's base name, so re-ingesting a file replaces
// its fragments by key.
type Ingestor struct {
	extractor  *extract.Extractor
	chunker    *chunker.Chunker
	retriever  *retriever.Retriever
	index      index.Index
	extensions []string
	logger     *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets a logger for per-file progress and skip events.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor creates an ingestor. extensions lists the accepted file
// extensions (with or without the leading dot); an empty list accepts every
// file.
func NewIngestor(
	extractor *extract.Extractor,
	ch *chunker.Chunker,
	ret *retriever.Retriever,
	idx index.Index,
	extensions []string,
	opts ...Option,
) *Ingestor {
	i := &Ingestor{
		extractor:  extractor,
		chunker:    ch,
		retriever:  ret,
		index:      idx,
		extensions: extensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestFile extracts, chunks and indexes a single file. It returns the
// number of fragments added; a file with no extractable text adds none and
// is not an error.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if len(i.extensions) > 0 && !extensionAllowed(ext, i.extensions) {
		return 0, fmt.Errorf("extension %q not in accepted list", ext)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}

	text, err := i.extractor.Extract(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", filepath.Base(absPath), err)
	}

	fragments := i.chunker.Split(text, filepath.Base(absPath))
	if len(fragments) == 0 {
		i.logger.Debug("no text content, skipping", zap.String("path", absPath))
		return 0, nil
	}

	n, err := i.retriever.Ingest(ctx, fragments)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", filepath.Base(absPath), err)
	}

	i.logger.Debug("file ingested",
		zap.String("path", absPath),
		zap.Int("fragments", n))
	return n, nil
}

// IngestDirectory walks dir recursively and ingests every regular file with
// an accepted extension. When clearExisting is set the collection is emptied
// first. Files that fail to extract or index are logged and skipped; the
// walk continues. It returns the total number of fragments added.
func (i *Ingestor) IngestDirectory(ctx context.Context, dir string, clearExisting bool) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	if clearExisting {
		if err := i.index.Clear(ctx); err != nil {
			return 0, fmt.Errorf("clear collection: %w", err)
		}
		i.logger.Info("collection cleared before ingest")
	}

	total := 0
	files := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(i.extensions) > 0 && !extensionAllowed(ext, i.extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}

		n, ingestErr := i.IngestFile(ctx, path)
		if ingestErr != nil {
			i.logger.Warn("skipping file",
				zap.String("path", path),
				zap.Error(ingestErr))
			return nil
		}
		total += n
		files++
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("walk %s: %w", absDir, err)
	}

	i.logger.Info("directory ingested",
		zap.String("dir", absDir),
		zap.Int("files", files),
		zap.Int("fragments", total))
	return total, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
