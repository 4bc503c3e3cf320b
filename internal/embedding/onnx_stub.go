//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

// ONNXEmbedder is a stub that returns an error when built without CGO.
// Build with CGO_ENABLED=1 and the onnxruntime library for the real one.
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error because ONNX is not available.
func NewONNXEmbedder(_, _ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Embed is not implemented without CGO.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("ONNX embedder not available")
}

// EmbedBatch is not implemented without CGO.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("ONNX embedder not available")
}

// Dimensions returns 0 without CGO.
func (e *ONNXEmbedder) Dimensions() int {
	return 0
}

// ModelID returns an empty string without CGO.
func (e *ONNXEmbedder) ModelID() string {
	return ""
}

// Close is a no-op without CGO.
func (e *ONNXEmbedder) Close() error {
	return nil
}
