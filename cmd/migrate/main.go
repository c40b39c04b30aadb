package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/pkg/logger"
)

func main() {
	var (
		steps = flag.Int("steps", 1, "Number of migrations to roll back (down only)")
		dsn   = flag.String("dsn", "", "Database URL; defaults to the DB_* settings")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] up|down\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	url := *dsn
	if url == "" {
		url = database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
		}.DSN()
	}

	switch flag.Arg(0) {
	case "up", "":
		err = database.Migrate(url, logger)
	case "down":
		err = database.MigrateDown(url, *steps, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}
