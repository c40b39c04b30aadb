// Package runner builds and runs one collection pipeline per request.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/jobs"
)

type Params struct {
	Source   auction.SourceType
	Filter   auction.Filter
	MaxItems int
	Enrich   bool
}

// Session is a browser tab owned by a single run.
type Session interface {
	collector.Page
	Close() error
}

type Opener func() (Session, error)

// BrowserOpener opens a fresh tab of b for every run.
func BrowserOpener(b *browser.Browser) Opener {
	return func() (Session, error) {
		return b.NewSession()
	}
}

type Runner struct {
	open     Opener
	sink     collector.RecordSink
	uploader collector.Uploader
	cfg      *config.Config
	logger   *slog.Logger
}

// New returns a runner. uploader may be nil, which turns enrichment off.
func New(open Opener, sink collector.RecordSink, uploader collector.Uploader, cfg *config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		open:     open,
		sink:     sink,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Runner) Run(ctx context.Context, p Params) (*collector.Summary, error) {
	page, err := r.open()
	if err != nil {
		return &collector.Summary{Source: p.Source}, fmt.Errorf("%w: open session: %w", collector.ErrFatal, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("failed to close session", "error", err)
		}
	}()

	pipeline := collector.NewPipeline(page, collector.ProfileFor(p.Source), r.sink, r.uploader, Options(r.cfg, p), r.logger)
	return pipeline.Run(ctx)
}

// JobFunc adapts the runner to the run queue.
func (r *Runner) JobFunc() jobs.RunFunc {
	return func(ctx context.Context, run *jobs.Run) (*collector.Summary, error) {
		return r.Run(ctx, Params{
			Source:   run.Source,
			Filter:   run.Filter(),
			MaxItems: run.MaxItems,
			Enrich:   run.Enrich,
		})
	}
}

// Options maps configuration and per-run parameters onto pipeline options.
// A positive p.MaxItems overrides the configured budget.
func Options(cfg *config.Config, p Params) collector.Options {
	maxItems := cfg.Pagination.MaxItems
	if p.MaxItems > 0 {
		maxItems = p.MaxItems
	}

	return collector.Options{
		Filter:              p.Filter,
		PageSize:            cfg.Pagination.PageSize,
		MaxItems:            maxItems,
		MaxConsecutiveSkips: cfg.Pagination.MaxConsecutiveSkips,
		CapturePolls:        cfg.Capture.Polls,
		CaptureInterval:     cfg.Capture.PollInterval,
		ReadyTimeout:        cfg.Browser.Timeout,
		Timing: collector.Timing{
			Init:    collector.Window{Min: cfg.Timing.InitMin, Max: cfg.Timing.InitMax},
			Cascade: collector.Window{Min: cfg.Timing.CascadeMin, Max: cfg.Timing.CascadeMax},
			Fill:    collector.Window{Min: cfg.Timing.FillMin, Max: cfg.Timing.FillMax},
			Page:    collector.Window{Min: cfg.Timing.PageMin, Max: cfg.Timing.PageMax},
		},
		Enrich: p.Enrich,
		Enrichment: collector.EnrichOptions{
			AddressPrefixLen: cfg.Enrichment.AddressPrefixLen,
			MaxAttempts:      cfg.Enrichment.MaxAttempts,
			MinImageChars:    cfg.Enrichment.MinImageChars,
			DetailWait:       cfg.Enrichment.DetailWait,
			ImageWait:        cfg.Enrichment.ImageWait,
			ItemDelay:        collector.Window{Min: cfg.Enrichment.ItemDelayMin, Max: cfg.Enrichment.ItemDelayMax},
		},
	}
}

// BrowserOptions maps the browser section of the configuration.
func BrowserOptions(cfg config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.Timeout
	opts.ViewportWidth = cfg.ViewportWidth
	opts.ViewportHeight = cfg.ViewportHeight
	opts.AcceptLanguage = cfg.AcceptLanguage
	opts.TimezoneID = cfg.TimezoneID
	opts.Locale = cfg.Locale
	opts.ProxyServer = cfg.ProxyServer
	opts.NavigateRetries = cfg.NavigateRetries
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	return opts
}
