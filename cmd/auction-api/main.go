package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/court-auction-scraper/internal/api"
	"github.com/maltedev/court-auction-scraper/internal/browser"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/internal/events"
	"github.com/maltedev/court-auction-scraper/internal/jobs"
	"github.com/maltedev/court-auction-scraper/internal/media"
	"github.com/maltedev/court-auction-scraper/internal/runner"
	"github.com/maltedev/court-auction-scraper/internal/sink"
	"github.com/maltedev/court-auction-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Name,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxConnIdle: cfg.Database.MaxConnIdle,
	}
	if err := database.Migrate(dbCfg.DSN(), logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
	relay := database.NewRelay(outbox, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	var uploader collector.Uploader
	if cfg.Enrichment.Enabled {
		store, err := media.NewMinioStore(cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to create blob store client", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Error("failed to prepare blob bucket", "error", err)
			os.Exit(1)
		}
		uploader = media.NewUploader(store, "", logger)
	}

	b, err := browser.New(runner.BrowserOptions(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	recordSink := sink.New(db, events.NewPublisher(outbox, logger), logger)
	r := runner.New(runner.BrowserOpener(b), recordSink, uploader, cfg, logger)

	manager := jobs.NewManager(jobs.NewPostgresRepository(db), r.JobFunc(), jobs.ManagerConfig{
		Interval:        cfg.Server.WorkerInterval,
		DefaultMaxItems: cfg.Pagination.MaxItems,
	}, logger)
	go manager.StartWorker(ctx)

	handlers := api.NewHandlers(manager, db, outbox, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, api.RouterConfig{Timeout: cfg.Server.WriteTimeout}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
