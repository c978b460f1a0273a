package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opschat/opschat-go/internal/adapters/chunkstore"
	"github.com/opschat/opschat-go/internal/adapters/embedding"
	"github.com/opschat/opschat-go/internal/adapters/filewatcher"
	"github.com/opschat/opschat-go/internal/adapters/llm"
	"github.com/opschat/opschat-go/internal/adapters/loader"
	"github.com/opschat/opschat-go/internal/config"
	"github.com/opschat/opschat-go/internal/domain/ports"
	"github.com/opschat/opschat-go/internal/domain/usecases"
	httpserver "github.com/opschat/opschat-go/internal/infrastructure/http"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] Loading config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("[ERROR] Opening storage: %v", err)
	}
	defer closeStore()

	embedder := buildEmbedder(cfg)
	chat := buildLLM(cfg)
	extractor := loader.NewMultiExtractor(
		loader.NewTextExtractor(),
		loader.NewPDFExtractor(""),
	)

	indexUC := usecases.NewIndexUseCase(store, store, embedder, extractor, cfg.Chunking.Size, cfg.Chunking.Overlap)
	queryUC := usecases.NewQueryUseCase(store, store, embedder, chat, cfg.Search.TopK, cfg.Search.CaseSensitive)

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		log.Fatalf("[ERROR] Creating upload dir: %v", err)
	}
	startWatcher(ctx, cfg.Server.UploadDir, extractor.SupportedExtensions(), indexUC)

	server := httpserver.NewServer(queryUC, indexUC, store, store, cfg.Server.UploadDir, cfg.Server.Addr)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("[ERROR] Server: %v", err)
	}
	log.Printf("[INFO] Shutdown complete")
}

// store is the combined storage surface both backends satisfy.
type store interface {
	ports.DocumentStore
	ports.ChunkStore
}

func buildStore(cfg *config.Config) (store, func(), error) {
	switch cfg.Storage.Type {
	case "memory":
		return chunkstore.NewMemoryStore(), func() {}, nil
	default:
		s, err := chunkstore.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func buildEmbedder(cfg *config.Config) ports.EmbeddingService {
	timeout := time.Duration(cfg.Embedding.TimeoutSecs) * time.Second
	if cfg.Embedding.Provider == "ollama" {
		return embedding.NewOllamaAdapter(cfg.Embedding.BaseURL, cfg.Embedding.Model, timeout)
	}
	apiKey := os.Getenv(cfg.Embedding.APIKeyEnv)
	if apiKey == "" {
		log.Printf("[WARN] %s is not set; embedding calls will fail", cfg.Embedding.APIKeyEnv)
	}
	return embedding.NewOpenAIAdapter(cfg.Embedding.BaseURL, apiKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, timeout)
}

func buildLLM(cfg *config.Config) ports.LLMService {
	timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second
	if cfg.LLM.Provider == "ollama" {
		return llm.NewOllamaAdapter(cfg.LLM.BaseURL, cfg.LLM.Model, timeout)
	}
	return llm.NewOpenAIAdapter(cfg.LLM.BaseURL, os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.Model, timeout)
}

// startWatcher indexes files dropped into the uploads directory outside the
// API, and removes documents whose source file disappears.
func startWatcher(ctx context.Context, dir string, extensions []string, indexUC *usecases.IndexUseCase) {
	watcher, err := filewatcher.NewFSNotifyWatcher(extensions)
	if err != nil {
		log.Printf("[WARN] File watcher unavailable: %v", err)
		return
	}

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		log.Printf("[WARN] Watching %s: %v", dir, err)
		watcher.Stop()
		return
	}

	go func() {
		defer watcher.Stop()
		for event := range events {
			switch event.Operation {
			case ports.FileCreated, ports.FileModified:
				doc, n, stats, err := indexUC.IndexFile(ctx, event.Path)
				if err != nil {
					log.Printf("[ERROR] Indexing %s: %v", event.Path, err)
					continue
				}
				log.Printf("[INFO] Indexed %s (document %d): %d chunks, %d embedded in %s",
					doc.Filename, doc.ID, n, stats.Generated, stats.Elapsed.Round(time.Millisecond))
			case ports.FileDeleted:
				if err := indexUC.RemoveFile(ctx, event.Path); err != nil {
					log.Printf("[ERROR] Removing %s: %v", event.Path, err)
				}
			}
		}
	}()
}
