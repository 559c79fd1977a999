package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/jobs"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/middleware"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/routes"
	"github.com/treechain/backend/internal/services/chain"
	"github.com/treechain/backend/internal/services/nodes"
	"github.com/treechain/backend/internal/store/backend"
	"github.com/treechain/backend/internal/tree"
	"github.com/treechain/backend/internal/utils"
)

const jobQueueName = "treechain"

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logr, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, logr, cfg.Tracing, cfg.Environment, os.Stdout)
	if err != nil {
		logr.Fatal("Failed to initialize tracing", "error", err)
	}

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		logr.Fatal("Failed to open node store", "backend", cfg.Store.Backend, "error", err)
	}
	logr.Info("node store ready", "backend", cfg.Store.Backend)

	enqueuer, source, closeQueue, err := openQueue(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("Failed to open job queue", "error", err)
	}

	engine := tree.NewEngine(st, logr, cfg.Query.Concurrency)
	nodeService := nodes.NewNodeService(st, engine, cfg.Query, logr)
	chainService := chain.NewChainService(st, enqueuer, logr, chain.WithJobRetries(cfg.Jobs.MaxRetries))

	worker := queue.NewWorker(source, cfg.Jobs.Workers, logr)
	jobs.RegisterJobHandlers(worker, st, logr)
	worker.Start(ctx)

	scheduler := jobs.NewScheduler(st, enqueuer, cfg.Jobs.RecountInterval, logr)
	if err := scheduler.Start(ctx); err != nil {
		logr.Fatal("Failed to start scheduler", "error", err)
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, 5*time.Minute)
	router := routes.SetupRouter(routes.Dependencies{
		Config:      cfg,
		Log:         logr,
		Nodes:       nodeService,
		Chains:      chainService,
		Tokens:      utils.NewJWTManager(cfg.JWT),
		RateLimiter: rateLimiter,
		Health: func(ctx context.Context) error {
			_, err := st.CountChains(ctx)
			return err
		},
	})

	srv := startServer(router, cfg.Server, logr)

	<-ctx.Done()
	logr.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("Server forced to shutdown", "error", err)
	}
	rateLimiter.Stop()
	scheduler.Stop()
	worker.Stop()
	closeQueue()
	if err := st.Close(shutdownCtx); err != nil {
		logr.Error("Failed to close node store", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Error("Failed to flush traces", "error", err)
	}
	logr.Info("Server exiting")
}

// openQueue uses Redis when REDIS_URL is set and an in-process queue
// otherwise. Jobs in the in-process queue do not survive a restart.
func openQueue(ctx context.Context, cfg *config.Config, logr *logger.Logger) (queue.Enqueuer, queue.Source, func(), error) {
	if cfg.Redis.URL == "" {
		logr.Warn("REDIS_URL not set, using in-memory job queue")
		q := queue.NewMemoryQueue()
		return q, q, q.Close, nil
	}
	client, err := queue.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	q := queue.NewRedisQueue(client, jobQueueName, logr)
	return q, q, func() {
		if err := client.Close(); err != nil {
			logr.Error("Failed to close redis client", "error", err)
		}
	}, nil
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, logr *logger.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("Failed to start server", "error", err)
		}
	}()

	logr.Info("Server started", "port", cfg.Port)
	return srv
}
