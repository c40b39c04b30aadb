package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

// RecordSink persists canonical records. Both methods must be safe to repeat.
type RecordSink interface {
	Upsert(ctx context.Context, rec auction.Record) error
	Patcher
}

type Options struct {
	Filter              auction.Filter
	PageSize            int
	MaxItems            int
	MaxConsecutiveSkips int
	CapturePolls        int
	CaptureInterval     time.Duration
	ReadyTimeout        time.Duration
	Timing              Timing
	Enrich              bool
	Enrichment          EnrichOptions
}

// Summary is the result of one run. It is returned even when the run stops
// early.
type Summary struct {
	Source        auction.SourceType `json:"source"`
	Pages         int                `json:"pages"`
	Captured      int                `json:"captured"`
	Distinct      int                `json:"distinct"`
	Saved         int                `json:"saved"`
	Enriched      int                `json:"enriched"`
	Degraded      int                `json:"degraded"`
	SkippedPages  int                `json:"skipped_pages"`
	WriteFailures int                `json:"write_failures"`
	Duration      time.Duration      `json:"duration"`
	Records       []auction.Record   `json:"records,omitempty"`
}

type Pipeline struct {
	page     Page
	profile  Profile
	sink     RecordSink
	uploader Uploader
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func NewPipeline(page Page, profile Profile, sink RecordSink, uploader Uploader, opts Options, logger *slog.Logger) *Pipeline {
	if opts.PageSize < 1 {
		opts.PageSize = 10
	}
	if opts.MaxItems < 1 {
		opts.MaxItems = 50
	}
	if opts.MaxConsecutiveSkips < 1 {
		opts.MaxConsecutiveSkips = 2
	}
	return &Pipeline{
		page:     page,
		profile:  profile,
		sink:     sink,
		uploader: uploader,
		opts:     opts,
		logger:   logger.With("component", "pipeline", "source", profile.Source),
		now:      time.Now,
	}
}

// Run collects, stores and optionally enriches one listing. Only ErrFatal
// and cancellation are returned as errors; every other failure is absorbed
// into the summary counts.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := p.now()
	summary := &Summary{Source: p.profile.Source}
	defer func() {
		summary.Duration = p.now().Sub(start)
	}()

	nav := NewFilterNavigator(p.page, p.profile, p.opts.Timing, p.opts.ReadyTimeout, p.logger)
	capture := NewResponseCapture(p.page, p.opts.CapturePolls, p.opts.CaptureInterval, p.logger)

	if err := nav.Open(ctx); err != nil {
		return summary, err
	}
	if err := nav.Apply(ctx, p.opts.Filter); err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		return summary, fmt.Errorf("%w: apply filters: %w", ErrFatal, err)
	}

	targets, err := p.collect(ctx, nav, capture, summary)
	if err != nil {
		return summary, err
	}

	lastPage := summary.Pages
	p.save(ctx, targets, summary)

	var saved []Target
	for _, t := range targets {
		if t.Page > 0 {
			saved = append(saved, t)
		}
	}

	if p.opts.Enrich && len(saved) > 0 && p.uploader != nil {
		reentry := &resultsReentry{nav: nav, capture: capture, profile: p.profile, filter: p.opts.Filter}
		worker := NewEnrichmentWorker(p.page, p.profile, reentry, p.uploader, p.sink, p.opts.Enrichment, p.logger)
		worker.SetResultsPage(lastPage)

		outcomes := worker.Run(ctx, saved)
		byID := make(map[string]Outcome, len(outcomes))
		for _, o := range outcomes {
			byID[o.SiteID] = o
		}
		for i := range summary.Records {
			if o, ok := byID[summary.Records[i].SiteID]; ok && o.State == StateEnriched {
				summary.Records[i].Apply(o.Enrichment)
			}
		}

		enriched, degraded, failures := countOutcomes(outcomes)
		summary.Enriched += enriched
		summary.Degraded += degraded
		summary.WriteFailures += failures
	}

	p.logger.Info("run finished",
		"pages", summary.Pages,
		"captured", summary.Captured,
		"distinct", summary.Distinct,
		"saved", summary.Saved,
		"enriched", summary.Enriched,
		"degraded", summary.Degraded,
		"skipped_pages", summary.SkippedPages,
		"write_failures", summary.WriteFailures)

	return summary, ctx.Err()
}

// collect walks the result pages in order and maps every first-seen item.
func (p *Pipeline) collect(ctx context.Context, nav *FilterNavigator, capture *ResponseCapture, summary *Summary) ([]Target, error) {
	cursor := NewCursor(p.page, capture, p.profile, nav.Submit, p.opts.PageSize, p.opts.MaxItems, p.opts.Timing.Page, p.logger)
	session := auction.NewSession()
	capturedOn := p.now()

	var (
		targets []Target
		skips   int
	)
	for page := 1; ; page++ {
		res, err := cursor.Advance(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return targets, ctx.Err()
			}
			if !errors.Is(err, ErrPageSkip) {
				return targets, err
			}
			summary.SkippedPages++
			skips++
			if skips >= p.opts.MaxConsecutiveSkips {
				p.logger.Warn("too many consecutive skipped pages", "page", page, "skips", skips)
				return targets, nil
			}
			continue
		}
		skips = 0

		if len(res.Items) > 0 {
			summary.Pages = page
		}
		summary.Captured += len(res.Items)

		for _, item := range session.Dedupe(res.Items) {
			targets = append(targets, Target{
				Record: auction.MapToRecord(item, p.profile.Source, capturedOn),
				Page:   page,
			})
		}
		summary.Distinct = session.Len()

		if res.IsLastPage {
			return targets, nil
		}
	}
}

// save upserts the basic records. Targets whose write failed get Page 0 and
// are left out of enrichment.
func (p *Pipeline) save(ctx context.Context, targets []Target, summary *Summary) {
	for i := range targets {
		t := &targets[i]
		if err := p.sink.Upsert(ctx, t.Record); err != nil {
			summary.WriteFailures++
			p.logger.Error("failed to upsert record", "site_id", t.Record.SiteID, "error", err)
			t.Page = 0
			if ctx.Err() != nil {
				return
			}
			continue
		}
		summary.Saved++
		summary.Records = append(summary.Records, t.Record)
	}
}

// resultsReentry reloads the list and clicks through to a page. It is the
// full re-navigation used when the result view has been left.
type resultsReentry struct {
	nav     *FilterNavigator
	capture *ResponseCapture
	profile Profile
	filter  auction.Filter
}

func (r *resultsReentry) Reenter(ctx context.Context, page int) error {
	if err := r.nav.Open(ctx); err != nil {
		return err
	}
	if err := r.nav.Apply(ctx, r.filter); err != nil {
		return err
	}
	if _, err := r.capture.Await(ctx, r.profile.Match, r.nav.Submit); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	for n := 2; n <= page; n++ {
		sel := r.profile.PageControlSelector(n)
		if sel == "" {
			return fmt.Errorf("page %d: list has a single page", n)
		}
		if _, err := r.capture.Await(ctx, r.profile.Match, func(ctx context.Context) error {
			return r.nav.page.Click(ctx, sel)
		}); err != nil {
			return fmt.Errorf("page %d: %w", n, err)
		}
	}
	return nil
}
