package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/backend"
	"github.com/classroll/attendance/internal/config"
	"github.com/classroll/attendance/internal/logging"
	"github.com/classroll/attendance/internal/queue"
	"github.com/classroll/attendance/internal/store"
	"github.com/classroll/attendance/internal/worker"
)

// Worker consumes session.finalized events from Redis and stores a report
// for each session.
func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env).Named("worker")
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" || cfg.StoreBackend != "postgres" {
		log.Fatal("standalone worker needs QUEUE_BACKEND=redis and STORE_BACKEND=postgres",
			zap.String("queue", cfg.QueueBackend), zap.String("store", cfg.StoreBackend))
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn("redis not reachable yet; will keep retrying")
	}

	repo := backend.NewPostgresRepository(db.Client)
	events := queue.NewRedisQueue(rdb.Client, "attendance:events", log)
	svc := backend.NewService(repo, nil, backend.TokenConfig{}, log)

	if err := worker.New(events, svc, log).Run(ctx); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
