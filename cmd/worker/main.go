package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/builder"
	"github.com/openuav/buildforge/internal/config"
	"github.com/openuav/buildforge/internal/gitrepo"
	kvredis "github.com/openuav/buildforge/internal/kv/redis"
	"github.com/openuav/buildforge/internal/manager"
	"github.com/openuav/buildforge/internal/meta"
	"github.com/openuav/buildforge/internal/ratelimit"
	"github.com/openuav/buildforge/internal/store"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting BuildForge Worker")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")
	kvStore := kvredis.NewStore(redisClient)

	// Provision the shared master source tree
	locks := gitrepo.NewLockRegistry()
	master, err := gitrepo.CloneIfNeeded(ctx, cfg.Source.MasterURL, cfg.Source.MasterPath, locks, logger)
	if err != nil {
		logger.Fatal("Failed to provision master source tree", zap.Error(err))
	}
	logger.Info("Master source tree ready", zap.String("path", master.Path()))

	// Build pipeline
	buildStore := store.New(kvStore, cfg.Builds.Queue, cfg.Builds.TTL, logger)
	limiter := ratelimit.NewLimiter(kvStore, cfg.RateLimit.Window, cfg.RateLimit.Allowed, logger)
	mgr := manager.New(buildStore, limiter, cfg.Builds.OutDir, logger)

	vehicles := meta.NewVehicleCatalog(meta.DefaultVehicles())
	fileMeta := meta.NewFileMeta(meta.DefaultExcludeBoards)
	toolchain := builder.NewWafToolchain(cfg.Toolchain.CompilerPath, cfg.Toolchain.CacheDir)

	bld := builder.New(mgr, master, fileMeta, vehicles, toolchain,
		cfg.Builds.WorkDir, cfg.Builds.QueuePollTimeout, cfg.Builds.Timeout, logger)

	// Run the builder loop
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bld.Run(ctx); err != nil {
			logger.Error("Builder loop error", zap.Error(err))
			cancel()
		}
	}()

	// Start Prometheus metrics server
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	// Wait for the in-flight build to finish its poll cycle
	wg.Wait()

	logger.Info("Worker stopped")
}
