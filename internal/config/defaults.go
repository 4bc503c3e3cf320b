package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSec == 0 {
		cfg.Server.RequestTimeoutSec = 300
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/fragments.db"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "documentation"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/paraphrase-multilingual-MiniLM-L12-v2.onnx"
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = "paraphrase-multilingual-MiniLM-L12-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 20
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 4000
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:1234/v1"
	}
	if cfg.Backend.APIKey == "" {
		cfg.Backend.APIKey = "lm-studio"
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = "qwen2.5-coder-14b-instruct"
	}
	if cfg.Backend.Temperature == 0 {
		cfg.Backend.Temperature = 0.4
	}
	if cfg.Backend.MaxTokens == 0 {
		cfg.Backend.MaxTokens = 1200
	}
	if cfg.Backend.TimeoutSec == 0 {
		cfg.Backend.TimeoutSec = 180
	}
	if cfg.Backend.AnswerLanguage == "" {
		cfg.Backend.AnswerLanguage = "English"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf", ".docx", ".txt", ".md", ".xlsx"}
	}
}
