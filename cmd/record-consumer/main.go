package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/stream"
	"github.com/maltedev/court-auction-scraper/pkg/logger"
)

func main() {
	var (
		group    = flag.String("group", "auction-record-projector", "Consumer group name")
		consumer = flag.String("consumer", "consumer-1", "Consumer name within the group")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	c := stream.NewConsumer(rdb, stream.Config{
		Stream:   cfg.Redis.Stream,
		Group:    *group,
		Consumer: *consumer,
	}, logger)

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
}
