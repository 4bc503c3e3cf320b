package models

import "errors"

// Sentinel errors shared across packages. Wrap with fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	// ErrInvalidInput marks blank or malformed caller input, rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch marks an embedding whose length differs from the
	// index's established dimensionality. The offending upsert fails whole;
	// existing entries are untouched.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBackendUnavailable marks a completion-backend failure. It never
	// reaches API callers: the answer generator converts it into diagnostic
	// answer text.
	ErrBackendUnavailable = errors.New("completion backend unavailable")

	// ErrIndexUnavailable marks an unreachable or corrupt index store. This
	// one is a hard error: without the index no retrieval is possible.
	ErrIndexUnavailable = errors.New("embedding index unavailable")
)
