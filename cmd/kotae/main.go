// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/assembler"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Load .env so ${VAR} references in the config file resolve.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "sources":
		runSources()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval scores, ingest progress, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	logger.Info("index opened",
		zap.String("collection", cfg.Storage.Collection),
		zap.Int("fragments", components.Index.Count()),
		zap.String("embedding_model", components.Embedder.ModelID()),
	)
	state := components.Backend.Probe(context.Background())
	logger.Info("completion backend probed",
		zap.String("state", string(state)),
		zap.String("base_url", cfg.Backend.BaseURL),
	)

	srv := server.NewServer(components.Service, components.Ingestor, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask how do I configure extension modules
  kotae ask "how do I configure extension modules"   # same as above
  kotae ask -k 3 where are billing exports stored
  kotae ask -output json what is the retention policy
`)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting (e.g. "billing exports" vs billing exports).
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kotae ask \"question\" -k 3"
// would otherwise leave -k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseOutputFormat resolves the -output flag value. The second return is
// false for unknown names.
func parseOutputFormat(name string) (cli.OutputFormat, bool) {
	switch name {
	case "json":
		return cli.OutputJSON, true
	case "text":
		return cli.OutputText, true
	}
	return cli.OutputText, false
}

func runAsk() {
	askArgs := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct access when server is not running)")
	k := fs.Int("k", 0, "number of fragments to retrieve (0 = configured default)")
	outputName := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(askArgs)

	question := buildQuery(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, ok := parseOutputFormat(*outputName)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputName)
		os.Exit(1)
	}

	if *serverURL != "" {
		// Use the HTTP API when the server is running so both see the same
		// collection state.
		answer, err := askViaHTTP(*serverURL, question, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct access (when server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	answer, err := components.Service.AnswerQuestion(context.Background(), question, *k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, question string, k int) (*models.QueryAnswer, error) {
	body, err := json.Marshal(map[string]interface{}{"question": question, "k": k})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var answer models.QueryAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func runSearch() {
	searchArgs := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct access when server is not running)")
	k := fs.Int("k", 0, "number of fragments to retrieve (0 = configured default)")
	outputName := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgs)

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	format, ok := parseOutputFormat(*outputName)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputName)
		os.Exit(1)
	}

	if *serverURL != "" {
		results, err := searchViaHTTP(*serverURL, query, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, query, results, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	results, err := components.Service.Search(context.Background(), query, *k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, query, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// searchHTTPResponse mirrors the POST /api/v1/search response body.
type searchHTTPResponse struct {
	Query   string `json:"query"`
	Results []struct {
		SourceID   string  `json:"source_id"`
		ChunkIndex int     `json:"chunk_index"`
		ChunkCount int     `json:"chunk_count"`
		Similarity float64 `json:"similarity"`
		Rank       int     `json:"rank"`
		Content    string  `json:"content"`
	} `json:"results"`
	Total int `json:"total"`
}

func searchViaHTTP(serverURL, query string, k int) ([]models.RetrievalResult, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "k": k})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response searchHTTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	results := make([]models.RetrievalResult, len(response.Results))
	for i, r := range response.Results {
		results[i] = models.RetrievalResult{
			Fragment: models.Fragment{
				Content:    r.Content,
				SourceID:   r.SourceID,
				ChunkIndex: r.ChunkIndex,
				ChunkCount: r.ChunkCount,
			},
			Similarity: r.Similarity,
			Rank:       r.Rank,
		}
	}
	return results, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct access when server is not running)")
	clear := fs.Bool("clear", false, "clear the collection before ingesting")
	_ = fs.Parse(os.Args[2:])

	directory := ""
	if fs.NArg() > 0 {
		abs, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad directory: %v\n", err)
			os.Exit(1)
		}
		directory = abs
	}

	if *serverURL != "" {
		// Ingest through the running server: a direct write would leave the
		// server's loaded collection stale until restart.
		job, err := ingestViaHTTP(*serverURL, directory, *clear)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingest job %s started for %s\n", job.ID, job.Directory)
		job, err = waitForIngestJob(*serverURL, job.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		if job.State == ingest.JobFailed {
			fmt.Fprintf(os.Stderr, "Ingest failed: %s\n", job.Error)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d fragments from %s\n", job.Fragments, job.Directory)
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if directory == "" {
		directory = cfg.Ingest.Directory
	}
	if directory == "" {
		fmt.Println("Usage: kotae ingest [flags] <directory>")
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	n, err := components.Ingestor.IngestDirectory(context.Background(), directory, *clear)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d fragments from %s\n", n, directory)
}

func ingestViaHTTP(serverURL, directory string, clearExisting bool) (*ingest.Job, error) {
	payload := map[string]interface{}{"clear_existing": clearExisting}
	if directory != "" {
		payload["directory"] = directory
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ingest", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var job ingest.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &job, nil
}

// waitForIngestJob polls the job endpoint until the job leaves the running
// state.
func waitForIngestJob(serverURL, id string) (*ingest.Job, error) {
	for {
		resp, err := http.Get(serverURL + "/api/v1/ingest/jobs/" + id)
		if err != nil {
			return nil, fmt.Errorf("poll failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
		}
		var job ingest.Job
		err = json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if job.State != ingest.JobRunning {
			return &job, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func runSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct access)")
	outputName := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, ok := parseOutputFormat(*outputName)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputName)
		os.Exit(1)
	}

	if *serverURL != "" {
		sources, err := sourcesViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sources failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSources(os.Stdout, sources, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := cli.WriteSources(os.Stdout, components.Service.Sources(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func sourcesViaHTTP(serverURL string) ([]string, error) {
	resp, err := http.Get(serverURL + "/api/v1/sources")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Sources []string `json:"sources"`
		Total   int      `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Sources, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct access)")
	outputName := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *models.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status = components.Service.Status(context.Background())
	}

	switch *outputName {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("index_state:       %s\n", status.Index.State)
		fmt.Printf("fragments:         %d   # count of indexed fragments\n", status.Index.FragmentCount)
		fmt.Printf("embedding_model:   %s\n", status.Index.EmbeddingModel)
		fmt.Println()
		fmt.Printf("backend_state:     %s\n", status.Backend.State)
		fmt.Printf("backend_url:       %s\n", status.Backend.BaseURL)
		if status.Backend.ActiveModel != "" {
			fmt.Printf("active_model:      %s\n", status.Backend.ActiveModel)
		}
		if len(status.Backend.AvailableModels) > 0 {
			fmt.Printf("available_models:  %s\n", strings.Join(status.Backend.AvailableModels, ", "))
		}
		fmt.Println()
		fmt.Printf("sources:           %d\n", len(status.Sources))
		for _, source := range status.Sources {
			fmt.Printf("  - %s\n", source)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputName)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*models.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists; use -force to overwrite\n", path)
		os.Exit(1)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote starter config to %s\n", path)
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    index.Index
	Backend  *llm.Client
	Service  *rag.Service
	Ingestor *ingest.Ingestor
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.ModelID,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, falling back to hashed bag-of-words embeddings",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	idx, err := index.NewSQLiteIndex(cfg.Storage.DatabasePath, cfg.Storage.Collection, embedder.ModelID())
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	componentLogger := zap.NewNop()
	if debug {
		componentLogger = logger
	}

	ret := retriever.New(embedder, idx, componentLogger)
	backend := llm.New(&llm.Config{
		BaseURL:        cfg.Backend.BaseURL,
		APIKey:         cfg.Backend.APIKey,
		Model:          cfg.Backend.Model,
		Temperature:    cfg.Backend.Temperature,
		MaxTokens:      cfg.Backend.MaxTokens,
		Timeout:        time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		AnswerLanguage: cfg.Backend.AnswerLanguage,
		Logger:         componentLogger,
	})
	svc := rag.NewService(ret, assembler.New(cfg.Retrieval.MaxContextChars), backend, idx, &cfg.Retrieval)

	ingestOpts := []ingest.Option{}
	if debug {
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
	}
	ingestor := ingest.NewIngestor(
		extract.NewExtractor(),
		chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap),
		ret,
		idx,
		cfg.Ingest.Extensions,
		ingestOpts...,
	)

	return &Components{
		Embedder: embedder,
		Index:    idx,
		Backend:  backend,
		Service:  svc,
		Ingestor: ingestor,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Grounded question answering over your own documents

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>     Ask a question against the indexed corpus
  kotae search [flags] <query>     Retrieve fragments without generating an answer
  kotae ingest [flags] <dir>       Ingest a directory of documents
  kotae sources [flags]            List indexed source documents
  kotae status [flags]             Show index and backend status
  kotae init [path]                Write a starter config file (default: ./config.yaml)
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (retrieval scores, ingest progress, etc.)

Ask / Search Flags:
  --config string    Config file path (for direct access mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access when the server is not running.
  --k int            Number of fragments to retrieve (0 = configured default)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access.
  --clear            Clear the collection before ingesting

Sources / Status Flags:
  --config string    Config file path (for direct access mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ingest ./docs
  kotae ask "how do I configure extension modules"
  kotae ask -k 3 where are billing exports stored
  kotae search --output json "billing exports"
  kotae sources
  kotae status
  kotae status --output json`)
}
