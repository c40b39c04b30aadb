package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Response is a network response seen by the page.
type Response interface {
	URL() string
	Body() ([]byte, error)
}

// Session is a single page driven by one goroutine. Response handlers are
// the only callbacks that run elsewhere.
type Session struct {
	page    playwright.Page
	hub     *responseHub
	retries int
	timeout time.Duration
	logger  *slog.Logger
}

func newSession(page playwright.Page, retries int, timeout time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		page:    page,
		hub:     newResponseHub(),
		retries: retries,
		timeout: timeout,
		logger:  logger.With("component", "session"),
	}
	page.OnResponse(func(r playwright.Response) {
		s.hub.publish(r)
	})
	return s
}

// OnResponse subscribes fn to every response until cancel is called. fn runs
// on its own goroutine and may block on Body; calls are serialized in arrival
// order.
func (s *Session) OnResponse(fn func(Response)) (cancel func()) {
	return s.hub.subscribe(fn)
}

// Navigate loads url, retrying with a linear backoff.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var lastErr error

	for i := 0; i < s.retries; i++ {
		if i > 0 {
			s.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		s.logger.Warn("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d attempts: %w", s.retries, lastErr)
}

func (s *Session) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Evaluate(script, args...)
}

// Click clicks the first match, bypassing actionability checks. The site
// overlays transparent layers on most controls.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Force: playwright.Bool(true),
	})
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().Fill(value)
}

func (s *Session) Exists(selector string) (bool, error) {
	n, err := s.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (s *Session) DoubleClickAt(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Mouse().Dblclick(x, y)
}

func (s *Session) Scroll(ctx context.Context, dy int) error {
	_, err := s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d)", dy))
	return err
}

func (s *Session) Content() (string, error) {
	return s.page.Content()
}

// Humanize moves the mouse across the viewport and scrolls a little.
func (s *Session) Humanize(ctx context.Context) error {
	for i := 0; i < 3; i++ {
		if err := s.page.Mouse().Move(float64(100+i*200), float64(100+i*150)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond * time.Duration(200+i*100)):
		}
	}

	_, err := s.Evaluate(ctx, `window.scrollBy(0, Math.random() * 300)`)
	return err
}

func (s *Session) Close() error {
	return s.page.Close()
}

// responseHub fans page responses out to the current subscribers. The
// playwright listener is registered once per page; subscribers come and go.
// Each subscriber sees responses one at a time, in the order they arrived.
type responseHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func newResponseHub() *responseHub {
	return &responseHub{subs: make(map[int]*subscriber)}
}

func (h *responseHub) subscribe(fn func(Response)) func() {
	sub := newSubscriber(fn)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			sub.close()
		})
	}
}

// publish never blocks the caller. Playwright delivers events on its
// connection goroutine, and reading a body from there would deadlock.
func (h *responseHub) publish(r Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		sub.push(r)
	}
}

// subscriber queues responses for a single handler goroutine.
type subscriber struct {
	fn     func(Response)
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Response
	closed bool
}

func newSubscriber(fn func(Response)) *subscriber {
	s := &subscriber{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) push(r Response) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, r)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		r := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(r)
	}
}

func (h *responseHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
