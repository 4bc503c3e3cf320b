package embedding

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestHashEmbedder_deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "extension modules")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), "extension modules")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text should produce the same embedding")
	}
	if len(a) != 64 {
		t.Errorf("dimensions = %d", len(a))
	}
}

func TestHashEmbedder_unitNorm(t *testing.T) {
	e := NewHashEmbedder(384)
	emb, err := e.Embed(context.Background(), "Some multilingual text: привет мир")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("squared norm = %f, want 1", sum)
	}
}

func TestHashEmbedder_sharedVocabularyScoresHigher(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "What are extension modules?")
	related, _ := e.Embed(ctx, "Extension modules allow custom integrations.")
	unrelated, _ := e.Embed(ctx, "They are loaded at startup.")
	if dot(query, related) <= dot(query, unrelated) {
		t.Errorf("related = %f, unrelated = %f", dot(query, related), dot(query, unrelated))
	}
}

func TestHashEmbedder_embedBatch(t *testing.T) {
	e := NewHashEmbedder(32)
	embs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 3 {
		t.Fatalf("got %d embeddings", len(embs))
	}
	single, _ := e.Embed(context.Background(), "two")
	if !reflect.DeepEqual(embs[1], single) {
		t.Error("batch embedding differs from single embedding")
	}
}

func TestTokenizeWords(t *testing.T) {
	got := tokenizeWords("What are extension modules?")
	want := []string{"what", "are", "extension", "modules"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if tokenizeWords("...!!!") != nil {
		t.Error("punctuation-only text should produce no words")
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
