package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/assembler"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retriever"
)

// fakeBackend is a minimal OpenAI-style inference server for handler tests.
type fakeBackend struct {
	completion string
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
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": f.completion}},
			},
		})
	})
	return mux
}

func newTestServer(t *testing.T, backendURL string) (*Server, *retriever.Retriever) {
	t.Helper()

	embedder := embedding.NewHashEmbedder(384)
	idx, err := index.NewSQLiteIndex(filepath.Join(t.TempDir(), "fragments.db"), "docs", embedder.ModelID())
	if err != nil {
		t.Fatalf("NewSQLiteIndex() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	ret := retriever.New(embedder, idx, zap.NewNop())
	backend := llm.New(&llm.Config{
		BaseURL: backendURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	retrieval := &config.RetrievalConfig{DefaultK: 5, MaxK: 20, MaxContextChars: 4000}
	svc := rag.NewService(ret, assembler.New(retrieval.MaxContextChars), backend, idx, retrieval)
	ing := ingest.NewIngestor(extract.NewExtractor(), chunker.New(200, 40), ret, idx, []string{"txt", "md"})

	cfg := &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeoutSec: 30},
		Retrieval: *retrieval,
	}
	return NewServer(svc, ing, cfg, zap.NewNop()), ret
}

func ingestFragments(t *testing.T, ret *retriever.Retriever, fragments ...models.Fragment) {
	t.Helper()
	if _, err := ret.Ingest(context.Background(), fragments); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}

func TestHandleQuery(t *testing.T) {
	backend := &fakeBackend{completion: "Extension modules add optional capabilities."}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	srv, ret := newTestServer(t, ts.URL)
	ingestFragments(t, ret, models.Fragment{
		Content:    "Extension modules extend the core engine with optional capabilities.",
		SourceID:   "manual.pdf",
		ChunkIndex: 0,
		ChunkCount: 1,
	})

	body, _ := json.Marshal(map[string]any{"question": "What are extension modules?", "k": 3})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Question       string   `json:"question"`
		Answer         string   `json:"answer"`
		Sources        []string `json:"sources"`
		RetrievedCount int      `json:"retrieved_count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Answer != backend.completion {
		t.Errorf("answer: got %q, want %q", out.Answer, backend.completion)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "manual.pdf" {
		t.Errorf("sources: got %v, want [manual.pdf]", out.Sources)
	}
	if out.RetrievedCount != 1 {
		t.Errorf("retrieved_count: got %d, want 1", out.RetrievedCount)
	}
}

func TestHandleQuery_BlankQuestion(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	body, _ := json.Marshal(map[string]string{"question": "   "})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Error == "" {
		t.Error("expected an error message in the response")
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, ret := newTestServer(t, "http://localhost:1")
	ingestFragments(t, ret,
		models.Fragment{Content: "Extension modules extend the core engine.", SourceID: "manual.pdf", ChunkIndex: 0, ChunkCount: 2},
		models.Fragment{Content: "Billing exports run nightly.", SourceID: "manual.pdf", ChunkIndex: 1, ChunkCount: 2},
	)

	body, _ := json.Marshal(map[string]any{"query": "extension modules", "k": 2})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Query   string `json:"query"`
		Results []struct {
			SourceID   string  `json:"source_id"`
			ChunkIndex int     `json:"chunk_index"`
			Similarity float64 `json:"similarity"`
			Rank       int     `json:"rank"`
			Content    string  `json:"content"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 2 || len(out.Results) != 2 {
		t.Fatalf("total: got %d with %d results, want 2", out.Total, len(out.Results))
	}
	if out.Results[0].ChunkIndex != 0 || out.Results[0].Rank != 1 {
		t.Errorf("top result: got chunk %d rank %d, want chunk 0 rank 1", out.Results[0].ChunkIndex, out.Results[0].Rank)
	}
	if out.Results[0].Similarity <= out.Results[1].Similarity {
		t.Errorf("results not ranked: %f <= %f", out.Results[0].Similarity, out.Results[1].Similarity)
	}
}

func TestHandleSearch_PreviewTruncated(t *testing.T) {
	srv, ret := newTestServer(t, "http://localhost:1")
	ingestFragments(t, ret, models.Fragment{
		Content:    strings.Repeat("alpha ", 60),
		SourceID:   "long.txt",
		ChunkIndex: 0,
		ChunkCount: 1,
	})

	body, _ := json.Marshal(map[string]any{"query": "alpha", "k": 1})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Results []struct {
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results: got %d, want 1", len(out.Results))
	}
	preview := out.Results[0].Content
	if !strings.HasSuffix(preview, "...") {
		t.Errorf("preview not marked truncated: %q", preview)
	}
	if n := len([]rune(preview)); n != searchPreviewChars+3 {
		t.Errorf("preview length: got %d runes, want %d", n, searchPreviewChars+3)
	}
}

func TestHandleIngest_Async(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	docs := t.TempDir()
	content := "Kotae answers questions from your own documentation."
	if err := os.WriteFile(filepath.Join(docs, "readme.txt"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"directory": docs})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var job ingest.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" {
		t.Fatal("job id is empty")
	}
	if job.Directory != docs {
		t.Errorf("job directory: got %q, want %q", job.Directory, docs)
	}

	// Poll through the router until the background job finishes.
	router := srv.routes()
	deadline := time.Now().Add(5 * time.Second)
	for {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+job.ID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("poll status: got %d", w.Code)
		}
		if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
			t.Fatal(err)
		}
		if job.State != ingest.JobRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ingest job did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.State != ingest.JobCompleted {
		t.Fatalf("job state: got %q (%s), want %q", job.State, job.Error, ingest.JobCompleted)
	}
	if job.Fragments < 1 {
		t.Errorf("fragments: got %d, want >= 1", job.Fragments)
	}
	if job.FinishedAt == nil {
		t.Error("finished_at not set on completed job")
	}

	w = httptest.NewRecorder()
	srv.handleSources(w, httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil))
	var sources struct {
		Sources []string `json:"sources"`
		Total   int      `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&sources); err != nil {
		t.Fatal(err)
	}
	if sources.Total != 1 || sources.Sources[0] != "readme.txt" {
		t.Errorf("sources after ingest: got %v", sources.Sources)
	}
}

func TestHandleIngest_DirectoryNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	body, _ := json.Marshal(map[string]string{"directory": filepath.Join(t.TempDir(), "missing")})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleIngest_DirectoryRequired(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleIngest_FileInsteadOfDirectory(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	file := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(file, []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]string{"directory": file})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleIngest_DefaultsToConfiguredDirectory(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")
	docs := t.TempDir()
	srv.config.Ingest.Directory = docs

	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var job ingest.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.Directory != docs {
		t.Errorf("job directory: got %q, want configured %q", job.Directory, docs)
	}
}

func TestHandleIngestJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/no-such-job", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	backend := &fakeBackend{completion: "ok"}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	srv, ret := newTestServer(t, ts.URL)
	ingestFragments(t, ret, models.Fragment{
		Content: "hello world", SourceID: "a.txt", ChunkIndex: 0, ChunkCount: 1,
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Index struct {
			State         string `json:"state"`
			FragmentCount int    `json:"fragment_count"`
		} `json:"index"`
		Backend struct {
			State string `json:"state"`
		} `json:"backend"`
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Index.State != models.IndexStateOnline {
		t.Errorf("index state: got %q, want %q", out.Index.State, models.IndexStateOnline)
	}
	if out.Index.FragmentCount != 1 {
		t.Errorf("fragment_count: got %d, want 1", out.Index.FragmentCount)
	}
	if out.Backend.State != "online" {
		t.Errorf("backend state: got %q, want online", out.Backend.State)
	}
	if len(out.Sources) != 1 || out.Sources[0] != "a.txt" {
		t.Errorf("sources: got %v, want [a.txt]", out.Sources)
	}
}

func TestHandleSources_Empty(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	w := httptest.NewRecorder()
	srv.handleSources(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Sources []string `json:"sources"`
		Total   int      `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Sources == nil {
		t.Error("sources: got null, want []")
	}
	if out.Total != 0 {
		t.Errorf("total: got %d, want 0", out.Total)
	}
}

func TestHandleModels(t *testing.T) {
	backend := &fakeBackend{completion: "ok"}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	srv, _ := newTestServer(t, ts.URL)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	w := httptest.NewRecorder()
	srv.handleModels(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Models []string `json:"models"`
		Active string   `json:"active"`
		State  string   `json:"state"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Models) != 1 || out.Models[0] != "test-model" {
		t.Errorf("models: got %v, want [test-model]", out.Models)
	}
	if out.State != "online" {
		t.Errorf("state: got %q, want online", out.State)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, "http://localhost:1")

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" {
		t.Errorf("body: got %v", out)
	}
}
