package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fitroom/tryon-engine/internal/cache"
	"github.com/fitroom/tryon-engine/internal/classifier"
	"github.com/fitroom/tryon-engine/internal/config"
	"github.com/fitroom/tryon-engine/internal/database"
	"github.com/fitroom/tryon-engine/internal/evaluator"
	"github.com/fitroom/tryon-engine/internal/generator"
	"github.com/fitroom/tryon-engine/internal/history"
	"github.com/fitroom/tryon-engine/internal/imagestore"
	"github.com/fitroom/tryon-engine/internal/llm"
	"github.com/fitroom/tryon-engine/internal/optimizer"
	"github.com/fitroom/tryon-engine/internal/promptstore"
	"github.com/fitroom/tryon-engine/internal/queue"
	"github.com/fitroom/tryon-engine/internal/queue/workers"
	"github.com/fitroom/tryon-engine/internal/tryon"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var db *pgxpool.Pool
	if pool, err := database.NewPool(ctx, cfg.Database); err != nil {
		slog.Warn("database unavailable, prompts will not persist", "error", err)
	} else {
		db = pool
		defer db.Close()

		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
	}

	var store promptstore.Store
	if db != nil {
		store = promptstore.NewPostgresStore(db, cfg.Tryon.AcceptScore)
	} else {
		store = promptstore.NewMemoryStore(cfg.Tryon.AcceptScore)
	}
	if err := store.SeedDefaults(ctx, promptstore.DefaultPrompts); err != nil {
		slog.Warn("failed to seed default prompts", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var progressCache *cache.Cache
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis cache unavailable, progress updates disabled", "error", err)
	} else {
		progressCache = cache.NewCache(rdb)
	}
	defer rdb.Close()

	gateway := llm.NewGateway(cfg.LLM)

	orch := tryon.NewOrchestrator(
		classifier.NewClassifier(gateway, cfg.LLM.VisionModel),
		generator.NewGeminiGenerator(cfg.Gemini, cfg.Tryon.GenerateTimeout),
		evaluator.NewEvaluator(gateway, cfg.LLM.VisionModel),
		optimizer.NewOptimizer(gateway, cfg.LLM.TextModel),
		store,
		cfg.Tryon,
	)

	tryonWorker := workers.NewTryonWorker(
		orch,
		history.NewService(db),
		imagestore.NewLocal(cfg.Storage.PhotosDir),
		progressCache,
	)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeTryonProcess, asynq.HandlerFunc(tryonWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 5)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
