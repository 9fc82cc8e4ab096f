package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finsight/internal/amqp"
	"finsight/internal/cache"
	"finsight/internal/config"
	"finsight/internal/connector"
	"finsight/internal/finance"
	apphttp "finsight/internal/http"
	applog "finsight/internal/log"
	"finsight/internal/provider"
	"finsight/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.Setup(applog.DefaultConfig(applog.ComponentAPI))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderClientID, cfg.ProviderSecret, cfg.FetchTimeout)
	pool := connector.NewPool(providerClient, connector.Config{
		MaxConcurrent: cfg.FetchConcurrency,
		Timeout:       cfg.FetchTimeout,
		MaxAttempts:   cfg.FetchMaxAttempts,
		BaseDelay:     cfg.FetchBaseDelay,
		FetchCount:    cfg.FetchCount,
	})

	// AMQP is optional; without it the API runs but publishes no events.
	var publisher finance.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without ingestion events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	memCache := cache.NewSummaryCache(cfg.CacheMaxEntries, cfg.CacheFreshness)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	memCache.StartCleanup(cfg.CachePurgeInterval, stopCleanup)

	service := finance.NewService(repo, pool, memCache, publisher, cfg.CacheFreshness)

	srv := apphttp.NewServer(":"+cfg.Port, service)
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting finsight server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
