// Tavola search server — provides the HTTP API, runs search pipelines, and
// fans progress out to WebSocket and SSE subscribers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shacharon/tavola/pkg/api"
	"github.com/shacharon/tavola/pkg/assistant"
	"github.com/shacharon/tavola/pkg/auth"
	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/events"
	"github.com/shacharon/tavola/pkg/jobstore"
	"github.com/shacharon/tavola/pkg/llm"
	"github.com/shacharon/tavola/pkg/pipeline"
	"github.com/shacharon/tavola/pkg/places"
	"github.com/shacharon/tavola/pkg/store"
	"github.com/shacharon/tavola/pkg/version"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting tavola",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"store_backend", cfg.StoreBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Persistence backend.
	var backend store.Backend
	if cfg.StoreBackend == "redis" {
		redisBackend, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("Redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		backend = redisBackend
	} else {
		backend = store.NewMemory()
	}

	// 2. Job store with the staleness sweep.
	jobs := jobstore.New(backend, jobstore.Options{
		RunningMaxAge:      cfg.DedupRunningMaxAge,
		SuccessFreshWindow: cfg.DedupSuccessFreshWindow,
		JobTTL:             cfg.JobTTL,
		SweepInterval:      cfg.SweepInterval,
	})
	jobs.StartSweeper(ctx)

	// 3. Realtime hub, cross-wired with the job store.
	hub := events.NewHub(events.Options{
		QueueMax:          cfg.WSOutboundQueueMax,
		WriteTimeout:      cfg.WSWriteTimeout,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		BacklogSize:       cfg.BacklogSize,
		BacklogTTL:        cfg.BacklogTTL,
		PendingSubWindow:  cfg.PendingSubWindow,
	})
	hub.SetJobReader(jobs)
	hub.StartHeartbeat(ctx)
	jobs.SetSubscriberChecker(hub)
	jobs.SetStaleNotifier(hub)

	// 4. External collaborators.
	provider := places.NewHTTPProvider(cfg, nil)
	llmClient := llm.NewHTTPClient(cfg.LLMServiceURL, cfg.LLMTimeout, nil)

	// 5. Pipeline and assistant streamer.
	orch := pipeline.New(cfg, jobs, hub, llmClient, provider)
	streamer := assistant.New(jobs, llmClient, cfg.AssistantPollInterval, cfg.AssistantSSETimeout)

	// 6. Auth substrate.
	authSvc := auth.NewService(backend, cfg)

	// 7. HTTP server (non-blocking).
	server := api.NewServer(ctx, cfg, authSvc, jobs, hub, orch, streamer, backend)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 8. Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// Drain WS subscribers first so clients see 1001, then stop HTTP, then
	// stop the background loops and close the backend.
	hub.Shutdown()

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	cancel()
	if err := backend.Close(); err != nil {
		slog.Warn("Backend close failed", "error", err)
	}
	slog.Info("Shutdown complete")
}
