package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/backend"
	"github.com/classroll/attendance/internal/config"
	"github.com/classroll/attendance/internal/httpapi"
	"github.com/classroll/attendance/internal/logging"
	"github.com/classroll/attendance/internal/queue"
	"github.com/classroll/attendance/internal/store"
	"github.com/classroll/attendance/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env)
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]func(context.Context) bool{}

	var (
		repo   backend.Repository
		seeder backend.Seeder
	)
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := backend.NewPostgresRepository(db.Client)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		repo, seeder = pg, pg
		health["db"] = db.Healthy
	default:
		mem := backend.NewMemoryRepository()
		repo, seeder = mem, mem
	}

	var events queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		events = queue.NewRedisQueue(rdb.Client, "attendance:events", log)
		health["redis"] = rdb.Healthy
	default:
		events = queue.NewInMemory(64)
	}

	svc := backend.NewService(repo, events, backend.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		TTL:        cfg.AccessTTL,
	}, log)

	if cfg.SeedDemo {
		if err := seedOnce(ctx, repo, seeder, log); err != nil {
			log.Warn("demo seed skipped", zap.Error(err))
		}
	}

	// The in-memory queue is process local, so its consumer runs here.
	if cfg.QueueBackend != "redis" {
		go func() {
			if err := worker.New(events, svc, log.Named("worker")).Run(ctx); err != nil {
				log.Error("worker failed", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := httpapi.NewRouter(svc, httpapi.Options{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		AllowedOrigins:  cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Registry:        reg,
		Healthy: func(ctx context.Context) map[string]bool {
			out := make(map[string]bool, len(health))
			for name, check := range health {
				out[name] = check(ctx)
			}
			return out
		},
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend),
			zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// seedOnce loads the demo data into an empty store.
func seedOnce(ctx context.Context, repo backend.Repository, seeder backend.Seeder, log *zap.Logger) error {
	courses, err := repo.ListCourses(ctx)
	if err != nil {
		return err
	}
	if len(courses) > 0 {
		return nil
	}
	demo, err := backend.SeedDemo(ctx, seeder)
	if err != nil {
		return err
	}
	log.Info("demo data seeded", zap.String("teacher", demo.Teacher.Username), zap.Int64("course_id", demo.Course.ID))
	return nil
}
