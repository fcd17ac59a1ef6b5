// Command glados runs the conversational memory service.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"

	"github.com/becomeliminal/glados/config"
	"github.com/becomeliminal/glados/engine"
	"github.com/becomeliminal/glados/inference"
	anthropicbackend "github.com/becomeliminal/glados/inference/anthropic"
	"github.com/becomeliminal/glados/inference/kobold"
	"github.com/becomeliminal/glados/memory/embedder/cache"
	"github.com/becomeliminal/glados/search"
	"github.com/becomeliminal/glados/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists (optional - will use system env vars if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	base, closeEmbedder, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	embedder, err := cache.New(base, cache.Config{MaxBytes: cfg.Embedder.CacheBytes})
	if err != nil {
		return err
	}
	defer embedder.Close()
	log.Printf("Embedder: %s (dims=%d, cache=%d bytes)", cfg.Embedder.Type, embedder.Dimensions(), cfg.Embedder.CacheBytes)

	backend := newBackend(cfg.Backend)
	log.Printf("Backend: %s", cfg.Backend.Type)

	ecfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	sessions := engine.NewSessions(engine.FileOpener(cfg.DataDir, embedder, backend, ecfg))

	var searcher server.Searcher
	if cfg.Search.URL != "" {
		searcher = search.New(search.Config{URL: cfg.Search.URL, MaxResults: cfg.Search.MaxResults})
		log.Printf("Search: %s", cfg.Search.URL)
	}

	health := server.NewHealth()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			log.Printf("[SERVER] gRPC health stopped: %v", err)
		}
	}()
	defer health.Stop()

	srv := server.New(sessions, searcher, health, server.Config{
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		Burst:             cfg.Server.Burst,
		GenerationRetries: cfg.Server.GenerationRetries,
	})

	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("GLaDOS is online")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("WebSocket endpoint: ws://%s/ws", cfg.Server.Addr)
	log.Printf("Health check: http://%s/health (gRPC %s)", cfg.Server.Addr, cfg.Server.GRPCAddr)
	log.Printf("Data directory: %s (failure policy %s)", cfg.DataDir, ecfg.FailurePolicy)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return srv.Run(ctx, cfg.Server.Addr)
}

func newBackend(cfg config.BackendConfig) inference.Backend {
	if cfg.Type == config.BackendAnthropic {
		client := anthropic.NewClient(option.WithAPIKey(cfg.Anthropic.APIKey))
		return anthropicbackend.New(&client, cfg.Anthropic.Model)
	}
	return kobold.New(kobold.Config{BaseURL: cfg.Kobold.URL, APIKey: cfg.Kobold.APIKey})
}
