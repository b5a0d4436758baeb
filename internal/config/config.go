package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Embedding collaborator (OpenAI-compatible /v1/embeddings endpoint).
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	// EmbeddingDim is the fixed vector dimension produced by the embedding
	// model. It must match the dimension of every persisted index; changing
	// the model requires rebuilding all user indexes.
	EmbeddingDim       int
	EmbeddingBatchSize int

	// Generation collaborator (OpenAI-compatible /v1/chat/completions endpoint).
	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	DBPath    string
	IndexDir  string
	UploadDir string

	ChunkSize    int
	ChunkOverlap int

	JWTSecret string
	APIPort   string

	IngestWorkers int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory, it is loaded first;
// environment variables already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "paraphrase-multilingual-mpnet-base-v2"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "gemini-2.5-flash"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		DBPath:             getEnv("DB_PATH", "./data/pdfchat.db"),
		IndexDir:           getEnv("INDEX_DIR", "./data/vector_indexes"),
		UploadDir:          getEnv("UPLOAD_DIR", "./data/uploads"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	// EMBEDDING_DIM has no sensible default: it must match the output size of
	// the configured embedding model (e.g. 768 for mpnet, 384 for MiniLM).
	dimStr := os.Getenv("EMBEDDING_DIM")
	if dimStr == "" {
		return nil, fmt.Errorf("EMBEDDING_DIM is required")
	}
	dim, err := strconv.Atoi(dimStr)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_DIM must be a valid integer: %w", err)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be greater than 0")
	}
	cfg.EmbeddingDim = dim

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.EmbeddingBatchSize, err = getEnvInt("EMBEDDING_BATCH_SIZE", 32)
	if err != nil {
		return nil, err
	}
	cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 800)
	if err != nil {
		return nil, err
	}
	cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 100)
	if err != nil {
		return nil, err
	}
	cfg.IngestWorkers, err = getEnvInt("INGEST_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	switch level := getEnv("LOG_LEVEL", "info"); level {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", level)
	}

	// Create working directories up front so the first upload does not race
	// directory creation.
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.IndexDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}
