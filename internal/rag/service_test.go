package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/assembler"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
)

// fakeBackend is a minimal OpenAI-style inference server for pipeline tests.
type fakeBackend struct {
	completion string
	lastPrompt string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "test-model"}},
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			f.lastPrompt = req.Messages[0].Content
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": f.completion}},
			},
		})
	})
	return mux
}

func newTestService(t *testing.T, backendURL string, retrieval *config.RetrievalConfig) (*Service, *retriever.Retriever) {
	t.Helper()
	if retrieval == nil {
		retrieval = &config.RetrievalConfig{DefaultK: 5, MaxK: 20, MaxContextChars: 4000}
	}

	embedder := embedding.NewHashEmbedder(384)
	idx, err := index.NewSQLiteIndex(filepath.Join(t.TempDir(), "fragments.db"), "docs", embedder.ModelID())
	if err != nil {
		t.Fatalf("NewSQLiteIndex() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	ret := retriever.New(embedder, idx, zap.NewNop())
	backend := llm.New(&llm.Config{
		BaseURL:        backendURL,
		APIKey:         "test-key",
		Model:          "test-model",
		Temperature:    0.2,
		MaxTokens:      128,
		Timeout:        5 * time.Second,
		AnswerLanguage: "English",
	})
	svc := NewService(ret, assembler.New(retrieval.MaxContextChars), backend, idx, retrieval)
	return svc, ret
}

func ingestManual(t *testing.T, ret *retriever.Retriever) {
	t.Helper()
	_, err := ret.Ingest(context.Background(), []models.Fragment{
		{
			Content:    "Extension modules extend the core engine with optional capabilities.",
			SourceID:   "manual.pdf",
			ChunkIndex: 0,
			ChunkCount: 2,
		},
		{
			Content:    "Billing exports are generated nightly as CSV files.",
			SourceID:   "manual.pdf",
			ChunkIndex: 1,
			ChunkCount: 2,
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}

func TestAnswerQuestion_BlankQuestion(t *testing.T) {
	svc, _ := newTestService(t, "http://localhost:1", nil)

	for _, question := range []string{"", "   ", "\t\n"} {
		_, err := svc.AnswerQuestion(context.Background(), question, 5)
		if !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("AnswerQuestion(%q) error = %v, want ErrInvalidInput", question, err)
		}
	}
}

func TestAnswerQuestion_EmptyIndex(t *testing.T) {
	// The backend URL points nowhere: with nothing retrieved it must never
	// be contacted.
	svc, _ := newTestService(t, "http://localhost:1", nil)

	answer, err := svc.AnswerQuestion(context.Background(), "What are extension modules?", 5)
	if err != nil {
		t.Fatalf("AnswerQuestion() error = %v", err)
	}
	if answer.Answer != NoRelevantInformation {
		t.Errorf("Answer = %q, want %q", answer.Answer, NoRelevantInformation)
	}
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil", answer.Sources)
	}
	if answer.RetrievedCount != 0 || answer.ContextChars != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", answer.RetrievedCount, answer.ContextChars)
	}
}

func TestAnswerQuestion_Success(t *testing.T) {
	backend := &fakeBackend{completion: "Extension modules add optional capabilities to the engine."}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	svc, ret := newTestService(t, ts.URL, nil)
	ingestManual(t, ret)

	answer, err := svc.AnswerQuestion(context.Background(), "What are extension modules?", 2)
	if err != nil {
		t.Fatalf("AnswerQuestion() error = %v", err)
	}

	if answer.Answer != backend.completion {
		t.Errorf("Answer = %q, want %q", answer.Answer, backend.completion)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "manual.pdf" {
		t.Errorf("Sources = %v, want [manual.pdf]", answer.Sources)
	}
	if answer.RetrievedCount != 2 {
		t.Errorf("RetrievedCount = %d, want 2", answer.RetrievedCount)
	}
	if answer.ContextChars == 0 {
		t.Error("ContextChars = 0, want > 0")
	}

	// The prompt must carry both the grounding context and the question.
	if !strings.Contains(backend.lastPrompt, "Extension modules extend the core engine") {
		t.Errorf("prompt missing retrieved content:\n%s", backend.lastPrompt)
	}
	if !strings.Contains(backend.lastPrompt, "What are extension modules?") {
		t.Errorf("prompt missing question:\n%s", backend.lastPrompt)
	}
	if !strings.Contains(backend.lastPrompt, "[Source: manual.pdf") {
		t.Errorf("prompt missing source attribution:\n%s", backend.lastPrompt)
	}
}

func TestAnswerQuestion_OfflineBackend(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	svc, ret := newTestService(t, url, nil)
	ingestManual(t, ret)

	answer, err := svc.AnswerQuestion(context.Background(), "What are extension modules?", 2)
	if err != nil {
		t.Fatalf("AnswerQuestion() with offline backend error = %v, want nil", err)
	}

	if !strings.Contains(answer.Answer, "not reachable") {
		t.Errorf("Answer = %q, want a backend diagnostic", answer.Answer)
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "manual.pdf" {
		t.Errorf("Sources = %v, want [manual.pdf] even when the backend is down", answer.Sources)
	}
	if answer.RetrievedCount != 2 {
		t.Errorf("RetrievedCount = %d, want 2", answer.RetrievedCount)
	}
	if answer.ContextChars == 0 {
		t.Error("ContextChars = 0, want > 0")
	}
}

func TestAnswerQuestion_KDefaultsAndCaps(t *testing.T) {
	backend := &fakeBackend{completion: "ok"}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	svc, ret := newTestService(t, ts.URL, &config.RetrievalConfig{
		DefaultK:        2,
		MaxK:            3,
		MaxContextChars: 4000,
	})

	fragments := make([]models.Fragment, 5)
	for i := range fragments {
		fragments[i] = models.Fragment{
			Content:    strings.Repeat("shared words ", 3),
			SourceID:   "doc.md",
			ChunkIndex: i,
			ChunkCount: 5,
		}
	}
	if _, err := ret.Ingest(context.Background(), fragments); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	answer, err := svc.AnswerQuestion(context.Background(), "shared words", 0)
	if err != nil {
		t.Fatalf("AnswerQuestion(k=0) error = %v", err)
	}
	if answer.RetrievedCount != 2 {
		t.Errorf("RetrievedCount with default k = %d, want 2", answer.RetrievedCount)
	}

	answer, err = svc.AnswerQuestion(context.Background(), "shared words", 50)
	if err != nil {
		t.Fatalf("AnswerQuestion(k=50) error = %v", err)
	}
	if answer.RetrievedCount != 3 {
		t.Errorf("RetrievedCount with oversize k = %d, want capped 3", answer.RetrievedCount)
	}
}

func TestSearch_NoGeneration(t *testing.T) {
	// No backend at all: Search must not need one.
	svc, ret := newTestService(t, "http://localhost:1", nil)
	ingestManual(t, ret)

	results, err := svc.Search(context.Background(), "extension modules", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Fragment.ChunkIndex != 0 {
		t.Errorf("top result chunk = %d, want 0", results[0].Fragment.ChunkIndex)
	}
}

func TestStatus(t *testing.T) {
	backend := &fakeBackend{completion: "ok"}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	svc, ret := newTestService(t, ts.URL, nil)

	status := svc.Status(context.Background())
	if status.Index.State != models.IndexStateEmpty {
		t.Errorf("Index.State = %q, want %q", status.Index.State, models.IndexStateEmpty)
	}
	if status.Index.FragmentCount != 0 {
		t.Errorf("Index.FragmentCount = %d, want 0", status.Index.FragmentCount)
	}

	ingestManual(t, ret)

	status = svc.Status(context.Background())
	if status.Index.State != models.IndexStateOnline {
		t.Errorf("Index.State = %q, want %q", status.Index.State, models.IndexStateOnline)
	}
	if status.Index.FragmentCount != 2 {
		t.Errorf("Index.FragmentCount = %d, want 2", status.Index.FragmentCount)
	}
	if status.Index.EmbeddingModel == "" {
		t.Error("Index.EmbeddingModel is empty")
	}
	if status.Backend.State != "online" {
		t.Errorf("Backend.State = %q, want %q", status.Backend.State, "online")
	}
	if len(status.Backend.AvailableModels) != 1 || status.Backend.AvailableModels[0] != "test-model" {
		t.Errorf("Backend.AvailableModels = %v, want [test-model]", status.Backend.AvailableModels)
	}
	if len(status.Sources) != 1 || status.Sources[0] != "manual.pdf" {
		t.Errorf("Sources = %v, want [manual.pdf]", status.Sources)
	}
}

func TestStatus_OfflineBackend(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	svc, _ := newTestService(t, url, nil)

	status := svc.Status(context.Background())
	if status.Backend.State != "offline" {
		t.Errorf("Backend.State = %q, want %q", status.Backend.State, "offline")
	}
	if status.Backend.BaseURL != url {
		t.Errorf("Backend.BaseURL = %q, want %q", status.Backend.BaseURL, url)
	}
}
