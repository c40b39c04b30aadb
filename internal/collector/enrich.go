package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/extract"
	"github.com/maltedev/court-auction-scraper/internal/ratelimit"
)

type State string

const (
	StatePending    State = "pending"
	StateNavigating State = "navigating"
	StateExtracting State = "extracting"
	StateEnriched   State = "enriched"
	StateDegraded   State = "degraded"
)

const (
	findRowJS = `([grid, prefix]) => {
  const norm = s => (s || '').replace(/\s+/g, ' ').trim();
  let rows = Array.from(document.querySelectorAll(grid + ' tr'));
  if (rows.length === 0) rows = Array.from(document.querySelectorAll('tr'));
  for (const row of rows) {
    if (!norm(row.textContent).includes(prefix)) continue;
    const cells = Array.from(row.querySelectorAll('td'));
    const cell = cells.find(c => norm(c.textContent).includes(prefix)) || cells[0] || row;
    cell.scrollIntoView({ block: 'center' });
    const r = cell.getBoundingClientRect();
    if (r.width === 0 && r.height === 0) continue;
    return { x: r.left + r.width / 2, y: r.top + r.height / 2 };
  }
  return null;
}`

	findImageJS = `([containers, minLen]) => {
  const isData = s => typeof s === 'string' && s.startsWith('data:image');
  for (const sel of containers) {
    for (const img of document.querySelectorAll(sel)) {
      if (isData(img.src)) return img.src;
    }
  }
  for (const img of document.querySelectorAll('img')) {
    if (isData(img.src) && img.src.length > minLen) return img.src;
  }
  return null;
}`
)

var imageContainers = []string{`[id*="imgPopup"] img`, `[id*="pic_"] img`}

type Uploader interface {
	Upload(ctx context.Context, dataURL, logicalName string) (string, error)
}

type Patcher interface {
	Patch(ctx context.Context, siteID string, source auction.SourceType, e auction.Enrichment) error
}

// Reentry brings the result list back on screen at page.
type Reentry interface {
	Reenter(ctx context.Context, page int) error
}

// Target is a stored record and the result page it was captured on.
type Target struct {
	Record auction.Record
	Page   int
}

type Outcome struct {
	SiteID     string
	State      State
	Attempts   int
	Enrichment auction.Enrichment
	Err        error
}

type EnrichOptions struct {
	AddressPrefixLen int
	MaxAttempts      int
	MinImageChars    int
	DetailWait       time.Duration
	ImageWait        time.Duration
	ScrollBy         int
	ItemDelay        Window
}

// EnrichmentWorker visits each target's detail view in turn. It owns the
// page for the whole pass; items are never processed concurrently.
type EnrichmentWorker struct {
	page     Page
	profile  Profile
	reentry  Reentry
	uploader Uploader
	patcher  Patcher
	opts     EnrichOptions
	limiter  *ratelimit.AdaptiveRateLimiter
	logger   *slog.Logger

	// resultsPage is the result page currently on screen; 0 when the view
	// is unknown or showing a detail page.
	resultsPage int
}

func NewEnrichmentWorker(page Page, profile Profile, reentry Reentry, uploader Uploader, patcher Patcher, opts EnrichOptions, logger *slog.Logger) *EnrichmentWorker {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.AddressPrefixLen < 1 {
		opts.AddressPrefixLen = 15
	}
	if opts.ScrollBy == 0 {
		opts.ScrollBy = 1000
	}
	return &EnrichmentWorker{
		page:     page,
		profile:  profile,
		reentry:  reentry,
		uploader: uploader,
		patcher:  patcher,
		opts:     opts,
		limiter:  ratelimit.NewAdaptiveRateLimiter(opts.ItemDelay.Min, opts.ItemDelay.Max),
		logger:   logger.With("component", "enrichment_worker"),
	}
}

// SetResultsPage tells the worker which result page is already loaded.
func (w *EnrichmentWorker) SetResultsPage(page int) {
	w.resultsPage = page
}

// Run enriches targets in order. It stops early only when ctx is done; the
// outcomes for unvisited targets are omitted.
func (w *EnrichmentWorker) Run(ctx context.Context, targets []Target) []Outcome {
	outcomes := make([]Outcome, 0, len(targets))

	for _, t := range targets {
		if err := w.limiter.Wait(ctx); err != nil {
			break
		}

		o := w.Enrich(ctx, t)
		outcomes = append(outcomes, o)

		if o.State == StateEnriched {
			w.limiter.RecordSuccess()
		} else {
			w.limiter.RecordError()
		}

		if ctx.Err() != nil {
			break
		}
	}

	return outcomes
}

// Enrich runs one target through Pending, Navigating and Extracting to
// Enriched or Degraded. A degraded target is never patched.
func (w *EnrichmentWorker) Enrich(ctx context.Context, t Target) Outcome {
	log := w.logger.With("site_id", t.Record.SiteID, "page", t.Page)
	o := Outcome{SiteID: t.Record.SiteID, State: StatePending}

	var (
		e   auction.Enrichment
		err error
	)
	for o.Attempts < w.opts.MaxAttempts {
		o.Attempts++
		e, err = w.attempt(ctx, t, o.Attempts, &o.State)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		log.Warn("enrichment attempt failed", "attempt", o.Attempts, "state", o.State, "error", err)
	}

	if err != nil {
		o.State = StateDegraded
		o.Err = fmt.Errorf("%w: %w", ErrItemDegraded, err)
		log.Info("record degraded", "attempts", o.Attempts)
		return o
	}

	o.State = StateEnriched
	o.Enrichment = e

	if err := w.patcher.Patch(ctx, t.Record.SiteID, t.Record.SourceType, e); err != nil {
		o.Err = fmt.Errorf("%w: patch %s: %w", ErrWriteFailure, t.Record.SiteID, err)
		log.Error("failed to patch enrichment", "error", err)
		return o
	}

	log.Info("record enriched", "attempts", o.Attempts, "thumbnail", *e.ThumbnailURL)
	return o
}

func (w *EnrichmentWorker) attempt(ctx context.Context, t Target, n int, state *State) (auction.Enrichment, error) {
	var e auction.Enrichment

	*state = StateNavigating
	if err := w.showResults(ctx, t.Page, n > 1); err != nil {
		return e, fmt.Errorf("re-enter page %d: %w", t.Page, err)
	}

	prefix := AddressPrefix(t.Record.Address, w.opts.AddressPrefixLen)
	if prefix == "" {
		return e, fmt.Errorf("%w: empty address", ErrRowNotFound)
	}

	v, err := w.page.Evaluate(ctx, findRowJS, []any{w.profile.Grid, prefix})
	if err != nil {
		return e, fmt.Errorf("find row: %w", err)
	}
	x, y, ok := point(v)
	if !ok {
		return e, fmt.Errorf("%w: %q", ErrRowNotFound, prefix)
	}

	if err := w.page.DoubleClickAt(ctx, x, y); err != nil {
		return e, fmt.Errorf("open detail: %w", err)
	}
	w.resultsPage = 0

	if err := sleep(ctx, w.opts.DetailWait); err != nil {
		return e, err
	}

	*state = StateExtracting
	html, err := w.page.Content()
	if err != nil {
		return e, fmt.Errorf("read detail: %w", err)
	}
	if !extract.IsDetailView(html) {
		return e, ErrNotDetailView
	}

	if d, err := extract.ParseDetail(html); err == nil {
		e = d.Enrichment()
	} else {
		w.logger.Debug("detail fields not parsed", "site_id", t.Record.SiteID, "error", err)
	}

	if err := w.page.Scroll(ctx, w.opts.ScrollBy); err != nil {
		return e, fmt.Errorf("scroll: %w", err)
	}
	if err := sleep(ctx, w.opts.ImageWait); err != nil {
		return e, err
	}

	v, err = w.page.Evaluate(ctx, findImageJS, []any{imageContainers, w.opts.MinImageChars})
	if err != nil {
		return e, fmt.Errorf("find image: %w", err)
	}
	dataURL, _ := v.(string)
	if dataURL == "" {
		return e, ErrNoImage
	}

	url, err := w.uploader.Upload(ctx, dataURL, LogicalName(t.Record))
	if err != nil {
		return e, fmt.Errorf("upload: %w", err)
	}
	e.ThumbnailURL = &url

	return e, nil
}

// showResults keeps the loaded result view when it already shows page,
// unless force is set.
func (w *EnrichmentWorker) showResults(ctx context.Context, page int, force bool) error {
	if !force && w.resultsPage == page && page > 0 {
		ok, err := w.page.Exists(w.profile.Grid)
		if err == nil && ok {
			return nil
		}
	}

	w.resultsPage = 0
	if err := w.reentry.Reenter(ctx, page); err != nil {
		return err
	}
	w.resultsPage = page
	return nil
}

// AddressPrefix collapses whitespace in addr and returns its first n runes.
func AddressPrefix(addr string, n int) string {
	s := strings.Join(strings.Fields(addr), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// LogicalName names an uploaded image after the item and its capture day.
func LogicalName(r auction.Record) string {
	return string(r.Key) + "_" + strings.ReplaceAll(r.DatePosted, "-", "")
}

func point(v any) (float64, float64, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	x, okx := number(m["x"])
	y, oky := number(m["y"])
	return x, y, okx && oky
}

func sleep(ctx context.Context, d time.Duration) error {
	return ratelimit.Pause(ctx, d, d)
}

// countOutcomes tallies a pass for the run summary.
func countOutcomes(outcomes []Outcome) (enriched, degraded, writeFailures int) {
	for _, o := range outcomes {
		switch {
		case o.State == StateDegraded:
			degraded++
		case errors.Is(o.Err, ErrWriteFailure):
			writeFailures++
		default:
			enriched++
		}
	}
	return
}
