package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkcx/internal/config"
	"checkcx/internal/configrepo"
	"checkcx/internal/dashboard"
	"checkcx/internal/history"
	"checkcx/internal/httpapi"
	"checkcx/internal/logging"
	"checkcx/internal/metrics"
	"checkcx/internal/officialstatus"
	"checkcx/internal/poller"
	"checkcx/internal/providers"
	"checkcx/internal/snapshot"
	"checkcx/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := storage.NewDB(cfg.Database.URL, storage.DBConfig{
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.Database.ConnMaxIdleTime,
		ConfigCacheSize:  cfg.Cache.ConfigCacheSize,
		ConfigCacheTTL:   cfg.Cache.ConfigCacheTTL,
		HistoryCacheSize: cfg.Cache.HistoryCacheSize,
		HistoryCacheTTL:  cfg.Cache.HistoryCacheTTL,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err), logging.KindStorage.Field())
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer rdb.Close()

	metricsReg := metrics.NewRegistry()

	configs := configrepo.New(db, logger)
	registry := providers.NewRegistry(logger, metricsReg)
	historyStore := history.New(db, logger)
	officialStatusPoller := officialstatus.New(rdb, cfg.OfficialStatus.PollInterval, logger, metricsReg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	officialStatusPoller.EnsureRunning(ctx)

	snapshots := snapshot.New(historyStore, registry, logger, metricsReg)
	aggregator := dashboard.New(configs, snapshots, officialStatusPoller, cfg.PollInterval)

	backgroundPoller := poller.New(aggregator, cfg.PollInterval, logger)
	backgroundPoller.EnsureRunning(ctx)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Aggregator: aggregator,
		Metrics:    metricsReg,
		Logger:     logger,
	})

	// WriteTimeout must exceed providers.ProbeTimeout: /api/dashboard and
	// /api/group/{groupName} both refresh with snapshot.RefreshAlways and
	// can block on a probe for up to ProbeTimeout before writing a response.
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: providers.ProbeTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("checkcx listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err), logging.KindInternal.Field())
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	backgroundPoller.Stop()
	officialStatusPoller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err), logging.KindInternal.Field())
	}

	logger.Info("server exited")
	os.Exit(0)
}
