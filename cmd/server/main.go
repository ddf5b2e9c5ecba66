package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/cleaner"
	"github.com/openuav/buildforge/internal/config"
	handler "github.com/openuav/buildforge/internal/delivery/http"
	"github.com/openuav/buildforge/internal/gitrepo"
	kvredis "github.com/openuav/buildforge/internal/kv/redis"
	"github.com/openuav/buildforge/internal/manager"
	"github.com/openuav/buildforge/internal/meta"
	"github.com/openuav/buildforge/internal/progress"
	"github.com/openuav/buildforge/internal/ratelimit"
	"github.com/openuav/buildforge/internal/scheduler"
	"github.com/openuav/buildforge/internal/store"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting BuildForge API Server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	rdb := goredis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis")
	kvStore := kvredis.NewStore(rdb)

	// Provision the shared master source tree
	locks := gitrepo.NewLockRegistry()
	master, err := gitrepo.CloneIfNeeded(ctx, cfg.Source.MasterURL, cfg.Source.MasterPath, locks, logger)
	if err != nil {
		logger.Fatal("Failed to provision master source tree", zap.Error(err))
	}
	logger.Info("Master source tree ready", zap.String("path", master.Path()))

	// Catalogs
	versions := meta.NewVersionCatalog(cfg.Source.RemotesFile, logger)
	if err := versions.Reload(); err != nil {
		logger.Fatal("Failed to load remotes file", zap.Error(err))
	}
	vehicles := meta.NewVehicleCatalog(meta.DefaultVehicles())
	fileMeta := meta.NewFileMeta(meta.DefaultExcludeBoards)
	cache := meta.NewCache(master, fileMeta, kvStore, cfg.Source.CacheTTL, logger)

	// Build submission pipeline
	buildStore := store.New(kvStore, cfg.Builds.Queue, cfg.Builds.TTL, logger)
	limiter := ratelimit.NewLimiter(kvStore, cfg.RateLimit.Window, cfg.RateLimit.Allowed, logger)
	mgr := manager.New(buildStore, limiter, cfg.Builds.OutDir, logger)

	// Background reconcilers
	updater := progress.NewUpdater(mgr, cfg.Builds.Timeout, logger)
	artifactCleaner := cleaner.New(mgr, logger)
	runner := scheduler.New(logger,
		scheduler.Task{Name: "progress", Every: cfg.Builds.ProgressEvery, Fn: updater.Tick},
		scheduler.Task{Name: "cleaner", Every: cfg.Builds.CleanEvery, Fn: artifactCleaner.Tick},
		scheduler.Task{Name: "remotes-reload", Every: cfg.Source.ReloadEvery, Fn: func(context.Context) error {
			return versions.Reload()
		}},
	)
	runner.Start(ctx)
	defer runner.Stop()

	// Initialize router
	router := handler.NewRouter(mgr, master, cache, versions, vehicles, kvStore, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
