package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/internal/events"
	"github.com/maltedev/court-auction-scraper/internal/media"
	"github.com/maltedev/court-auction-scraper/internal/runner"
	"github.com/maltedev/court-auction-scraper/internal/sink"
	"github.com/maltedev/court-auction-scraper/internal/storage"
	"github.com/maltedev/court-auction-scraper/pkg/logger"
)

type flags struct {
	source        string
	region        string
	category      string
	start         string
	end           string
	maxItems      int
	enrich        bool
	output        string
	headless      bool
	retentionDays int
	noDB          bool
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	var f flags
	flag.StringVar(&f.source, "source", string(auction.SourceSearch), "Listing to collect: auction or popular")
	flag.StringVar(&f.region, "region", "", "Region option text, e.g. 서울특별시")
	flag.StringVar(&f.category, "category", "", "Property category: apartment, villa, officetel, commercial or a form label")
	flag.StringVar(&f.start, "start", "", "First day of the sale window (YYYYMMDD), default today")
	flag.StringVar(&f.end, "end", "", "Last day of the sale window (YYYYMMDD), default today + 7")
	flag.IntVar(&f.maxItems, "max-items", cfg.Pagination.MaxItems, "Maximum number of list items to collect")
	flag.BoolVar(&f.enrich, "enrich", cfg.Enrichment.Enabled, "Visit each record's detail view for images and extra fields")
	flag.StringVar(&f.output, "output", "", "Write the collected records to this JSON file")
	flag.BoolVar(&f.headless, "headless", cfg.Browser.Headless, "Run browser in headless mode")
	flag.IntVar(&f.retentionDays, "retention-days", cfg.Retention.Days, "Delete records posted more than this many days ago (0 keeps all)")
	flag.BoolVar(&f.noDB, "no-db", false, "Store records only in the -output file")
	flag.Parse()

	cfg.Browser.Headless = f.headless
	cfg.Pagination.MaxItems = f.maxItems

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	params, err := buildParams(f)
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		return 1
	}
	if f.noDB && f.output == "" {
		logger.Error("invalid arguments", "error", "-no-db requires -output")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting court auction collector",
		"source", params.Source,
		"region", params.Filter.Region,
		"category", params.Filter.Category,
		"max_items", params.MaxItems,
		"enrich", params.Enrich)

	var (
		recordSink collector.RecordSink
		db         *database.DB
		recordFile *storage.RecordFile
	)
	if f.noDB {
		recordFile, err = storage.NewRecordFile(f.output)
		if err != nil {
			logger.Error("failed to open output file", "error", err)
			return 1
		}
		recordSink = recordFile
	} else {
		db, err = openDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to set up database", "error", err)
			return 1
		}
		defer db.Close()

		if f.retentionDays > 0 {
			deleted, err := db.DeleteOlderThan(ctx, f.retentionDays)
			if err != nil {
				logger.Warn("retention cleanup failed", "error", err)
			} else {
				logger.Info("retention cleanup", "deleted", deleted, "days", f.retentionDays)
			}
		}

		publisher := events.NewPublisher(database.NewOutboxRepository(db, cfg.Redis.Stream), logger)
		recordSink = sink.New(db, publisher, logger)
	}

	var uploader collector.Uploader
	if params.Enrich {
		store, err := media.NewMinioStore(cfg.Storage, logger)
		if err != nil {
			logger.Error("failed to create blob store client", "error", err)
			return 1
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Error("failed to prepare blob bucket", "error", err)
			return 1
		}
		uploader = media.NewUploader(store, "", logger)
	}

	b, err := browser.New(runner.BrowserOptions(cfg.Browser), logger)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		return 1
	}
	defer b.Close()

	summary, runErr := runner.New(runner.BrowserOpener(b), recordSink, uploader, cfg, logger).Run(ctx, params)

	if !f.noDB && summary != nil {
		if f.output != "" {
			if err := storage.WriteJSON(f.output, summary); err != nil {
				logger.Error("failed to write output file", "path", f.output, "error", err)
			}
		}
		drainOutbox(db, cfg, logger)
	}

	printSummary(summary)
	if recordFile != nil {
		logger.Info("records stored", "path", f.output, "by_category", recordFile.Stats())
	}

	switch {
	case errors.Is(runErr, collector.ErrFatal):
		logger.Error("run aborted", "error", runErr)
		return 1
	case runErr != nil:
		logger.Warn("run interrupted", "error", runErr)
	}

	return 0
}

func buildParams(f flags) (runner.Params, error) {
	source, err := auction.ParseSourceType(f.source)
	if err != nil {
		return runner.Params{}, err
	}

	p := runner.Params{
		Source:   source,
		MaxItems: f.maxItems,
		Enrich:   f.enrich,
		Filter: auction.Filter{
			Region:   strings.TrimSpace(f.region),
			Category: strings.TrimSpace(f.category),
		},
	}

	if f.start != "" {
		if p.Filter.Start, err = auction.ParseDay(f.start, time.Local); err != nil {
			return runner.Params{}, fmt.Errorf("-start: %w", err)
		}
	}
	if f.end != "" {
		if p.Filter.End, err = auction.ParseDay(f.end, time.Local); err != nil {
			return runner.Params{}, fmt.Errorf("-end: %w", err)
		}
	}

	return p, p.Filter.Validate()
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
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
		return nil, err
	}

	return database.New(ctx, dbCfg)
}

// drainOutbox publishes the events of this run. Undelivered events stay in
// the outbox for the next relay.
func drainOutbox(db *database.DB, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, events left in outbox", "error", err)
		return
	}

	relay := database.NewRelay(database.NewOutboxRepository(db, cfg.Redis.Stream), redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	n, err := relay.Drain(ctx)
	if err != nil {
		logger.Warn("outbox drain incomplete", "published", n, "error", err)
		return
	}
	logger.Info("outbox drained", "published", n)
}

func printSummary(s *collector.Summary) {
	if s == nil {
		return
	}
	out := *s
	out.Records = nil
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}
