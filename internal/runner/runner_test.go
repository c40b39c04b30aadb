package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/config"
	"github.com/maltedev/court-auction-scraper/internal/jobs"
)

// deadSession fails navigation, so every run stops at the open step.
type deadSession struct {
	navigated []string
	closed    bool
}

func (s *deadSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return errors.New("net::ERR_CONNECTION_REFUSED")
}
func (s *deadSession) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	return nil, nil
}
func (s *deadSession) Click(ctx context.Context, selector string) error       { return nil }
func (s *deadSession) Fill(ctx context.Context, selector, value string) error { return nil }
func (s *deadSession) Exists(selector string) (bool, error)                   { return false, nil }
func (s *deadSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (s *deadSession) DoubleClickAt(ctx context.Context, x, y float64) error { return nil }
func (s *deadSession) Scroll(ctx context.Context, dy int) error             { return nil }
func (s *deadSession) Content() (string, error)                             { return "", nil }
func (s *deadSession) OnResponse(fn func(browser.Response)) func()          { return func() {} }
func (s *deadSession) Close() error {
	s.closed = true
	return nil
}

type nopSink struct{}

func (nopSink) Upsert(ctx context.Context, rec auction.Record) error { return nil }
func (nopSink) Patch(ctx context.Context, siteID string, source auction.SourceType, e auction.Enrichment) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Browser:    config.BrowserConfig{Headless: true, Timeout: 5 * time.Second, Locale: "ko-KR"},
		Capture:    config.CaptureConfig{Polls: 40, PollInterval: 500 * time.Millisecond},
		Pagination: config.PaginationConfig{PageSize: 10, MaxItems: 50, MaxConsecutiveSkips: 2},
		Timing: config.TimingConfig{
			InitMin: 2 * time.Second, InitMax: 3 * time.Second,
			PageMin: 1500 * time.Millisecond, PageMax: 2500 * time.Millisecond,
		},
		Enrichment: config.EnrichmentConfig{
			AddressPrefixLen: 15,
			MaxAttempts:      2,
			ItemDelayMin:     2 * time.Second,
			ItemDelayMax:     4 * time.Second,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOptions(t *testing.T) {
	cfg := testConfig()

	t.Run("configured budget", func(t *testing.T) {
		opts := Options(cfg, Params{Source: auction.SourceSearch, Enrich: true})

		assert.Equal(t, 50, opts.MaxItems)
		assert.Equal(t, 10, opts.PageSize)
		assert.Equal(t, 40, opts.CapturePolls)
		assert.Equal(t, 5*time.Second, opts.ReadyTimeout)
		assert.Equal(t, collector.Window{Min: 2 * time.Second, Max: 3 * time.Second}, opts.Timing.Init)
		assert.Equal(t, 15, opts.Enrichment.AddressPrefixLen)
		assert.Equal(t, 2, opts.Enrichment.MaxAttempts)
		assert.True(t, opts.Enrich)
	})

	t.Run("run budget wins", func(t *testing.T) {
		opts := Options(cfg, Params{MaxItems: 7})
		assert.Equal(t, 7, opts.MaxItems)
		assert.False(t, opts.Enrich)
	})
}

func TestBrowserOptions(t *testing.T) {
	opts := BrowserOptions(config.BrowserConfig{Headless: false, Locale: "ko-KR", TimezoneID: "Asia/Seoul"})

	assert.False(t, opts.Headless)
	assert.Equal(t, "Asia/Seoul", opts.TimezoneID)
	assert.NotEmpty(t, opts.UserAgent, "default user agent is kept")
	assert.True(t, opts.Stealth)
}

func TestRunner_RunClosesSessionOnFatal(t *testing.T) {
	session := &deadSession{}
	r := New(func() (Session, error) { return session, nil }, nopSink{}, nil, testConfig(), testLogger())

	summary, err := r.Run(context.Background(), Params{Source: auction.SourcePopular})

	require.ErrorIs(t, err, collector.ErrFatal)
	require.NotNil(t, summary)
	assert.Equal(t, auction.SourcePopular, summary.Source)
	assert.True(t, session.closed)
	require.Len(t, session.navigated, 1)
	assert.Contains(t, session.navigated[0], "PGJ155M00")
}

func TestRunner_OpenFailureIsFatal(t *testing.T) {
	r := New(func() (Session, error) { return nil, errors.New("browser gone") }, nopSink{}, nil, testConfig(), testLogger())

	_, err := r.Run(context.Background(), Params{})
	assert.ErrorIs(t, err, collector.ErrFatal)
}

func TestRunner_JobFunc(t *testing.T) {
	session := &deadSession{}
	r := New(func() (Session, error) { return session, nil }, nopSink{}, nil, testConfig(), testLogger())

	start := "2024-03-01"
	_, err := r.JobFunc()(context.Background(), &jobs.Run{Source: auction.SourceSearch, StartDate: &start, MaxItems: 5})

	assert.ErrorIs(t, err, collector.ErrFatal)
	require.Len(t, session.navigated, 1)
	assert.Contains(t, session.navigated[0], "PGJ151F00")
}
