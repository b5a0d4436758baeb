package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdfchat/internal/auth"
	"pdfchat/internal/chunker"
	"pdfchat/internal/config"
	"pdfchat/internal/extractor"
	"pdfchat/internal/http"
	"pdfchat/internal/ingest"
	"pdfchat/internal/llm"
	"pdfchat/internal/rag"
	"pdfchat/internal/storage"
	"pdfchat/internal/vecindex"
)

const (
	tokenTTL        = 24 * time.Hour
	ingestQueueSize = 64
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	userRepo := storage.NewUserRepo(db)
	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	chatRepo := storage.NewChatRepo(db)

	// External model collaborators
	embedder := llm.NewEmbeddingsClient(
		cfg.EmbeddingBaseURL,
		cfg.EmbeddingAPIKey,
		cfg.EmbeddingModelName,
		cfg.EmbeddingDim,
		cfg.EmbeddingBatchSize,
	)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	// Per-user vector indexes
	indexStore := vecindex.NewStore(cfg.IndexDir, cfg.EmbeddingDim)
	slog.Info("Vector index store ready", "dir", cfg.IndexDir, "dim", cfg.EmbeddingDim)

	// Ingestion pipeline and its worker pool
	pipeline := ingest.NewPipeline(
		docRepo,
		chunkRepo,
		extractor.NewPDFExtractor(),
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		indexStore,
	)
	runner := ingest.NewRunner(pipeline, cfg.IngestWorkers, ingestQueueSize, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	runner.Start(workerCtx)
	slog.Info("Ingestion workers started", "workers", cfg.IngestWorkers)

	// Retrieval engine
	ragEngine := rag.NewEngine(
		embedder,
		indexStore,
		llmClient,
		chunkRepo,
		docRepo,
		chatRepo,
		rag.DefaultTopK,
	)

	tokens := auth.NewService(cfg.JWTSecret, tokenTTL)

	router := http.NewRouter(&http.Deps{
		Logger:    logger,
		DB:        db,
		Tokens:    tokens,
		Users:     userRepo,
		Docs:      docRepo,
		Chunks:    chunkRepo,
		Chats:     chatRepo,
		Deleter:   pipeline,
		Queue:     runner,
		Engine:    ragEngine,
		UploadDir: cfg.UploadDir,
	})

	server := &nethttp.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start API server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("API server failed: %v", err)
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	// Let in-flight ingestions finish before exiting.
	runner.Stop()
	slog.Info("Shutdown complete")
}
