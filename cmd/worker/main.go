// Package main is the entrypoint for a docpipe stage worker process. Each
// process binds exactly one queue and runs only that stage's transformer;
// horizontal scaling is more processes on the same queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docpipe/docpipe/internal/api"
	"github.com/docpipe/docpipe/internal/api/handler"
	"github.com/docpipe/docpipe/internal/artifact"
	"github.com/docpipe/docpipe/internal/config"
	"github.com/docpipe/docpipe/internal/embedding"
	"github.com/docpipe/docpipe/internal/index"
	"github.com/docpipe/docpipe/internal/ocr"
	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/queue"
	"github.com/docpipe/docpipe/internal/stages"
	"github.com/docpipe/docpipe/internal/store"
	"github.com/docpipe/docpipe/internal/worker"
	"github.com/docpipe/docpipe/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("validate worker config: %w", err)
	}
	stage, _ := models.StageForQueue(cfg.Worker.Queue)
	slog.Info("config loaded", "queue", cfg.Worker.Queue, "stage", stage, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	broker, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Worker.VisibilityTimeout)
	if err != nil {
		return fmt.Errorf("create redis queue: %w", err)
	}
	defer broker.Close()

	if err := broker.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobs := store.NewPostgresStore(pool)

	artifacts, err := newArtifactStore(cfg.Artifact, pool)
	if err != nil {
		return fmt.Errorf("create artifact store: %w", err)
	}

	transformer, err := buildTransformer(stage, cfg, pool)
	if err != nil {
		return fmt.Errorf("build %s transformer: %w", stage, err)
	}

	backoff := worker.Backoff{Base: cfg.Worker.BackoffBase, Cap: cfg.Worker.BackoffCap}
	w, err := worker.New(jobs, broker, artifacts, transformer, cfg.Worker.MaxAttempts, backoff)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	var healthSrv *http.Server
	if cfg.Worker.HealthPort > 0 {
		healthSrv = startHealthServer(cfg.Worker.HealthPort, jobs, broker)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("consumer exited", "error", err)
			}
		}()
	}
	slog.Info("workers running", "concurrency", cfg.Worker.Concurrency)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining workers...")
	wg.Wait()

	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("health server shutdown: %w", err)
		}
	}

	slog.Info("worker stopped gracefully")
	return nil
}

func newArtifactStore(cfg config.ArtifactConfig, pool *pgxpool.Pool) (artifact.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return artifact.NewPostgresStore(pool), nil
	case "filesystem":
		return artifact.NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// buildTransformer wires only the collaborators the bound stage needs: the
// ocr worker gets no embedding provider, the embed worker no OCR client.
func buildTransformer(stage models.Stage, cfg *config.Config, pool *pgxpool.Pool) (worker.Transformer, error) {
	switch stage {
	case models.StageIngest:
		return stages.NewIngest(cfg.Ingest.MaxFileSizeMB), nil
	case models.StageOCR:
		extractor := ocr.NewHTTPClient(cfg.OCR.BaseURL, cfg.OCR.Timeout)
		return stages.NewOCR(extractor), nil
	case models.StageChunk:
		counter, err := stages.NewTiktokenCounter(cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		return stages.NewChunker(counter, cfg.Chunking.ChunkTokens, cfg.Chunking.ChunkOverlap), nil
	case models.StageEmbed:
		provider, err := embedding.NewProvider(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		slog.Info("embedding provider initialized", "provider", provider.Name())
		return stages.NewEmbed(provider, cfg.Embedding.BatchSize), nil
	case models.StageVectorize:
		return stages.NewVectorize(index.NewPostgresIndex(pool)), nil
	default:
		return nil, fmt.Errorf("no transformer for stage %q", stage)
	}
}

// startHealthServer exposes the ops endpoints next to the worker loop.
func startHealthServer(port int, jobs store.JobStore, broker queue.Queue) *http.Server {
	svc := pipeline.NewService(jobs, broker, nil)
	router := api.NewRouter(api.Dependencies{
		HealthHandler:   handler.NewHealthHandler(jobs, broker),
		GetJobHandler:   handler.NewGetJobHandler(svc),
		ListJobsHandler: handler.NewListJobsHandler(svc),
		PoisonHandler:   handler.NewPoisonHandler(svc),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("health server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server failed", "error", err)
		}
	}()
	return srv
}
