package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
)

type fakeResponse struct {
	url   string
	body  []byte
	delay time.Duration
}

func (r fakeResponse) URL() string { return r.url }

func (r fakeResponse) Body() ([]byte, error) {
	time.Sleep(r.delay)
	return r.body, nil
}

// fakePage scripts the responses each click produces and records every
// call it receives.
type fakePage struct {
	mu        sync.Mutex
	handlers  map[int]func(browser.Response)
	nextID    int
	responses map[string][]fakeResponse
	exists    map[string]bool
	calls     []string
	content   string
	evaluate  func(script string, arg any) (any, error)
	navErr    error
	visibleOK bool
}

func newFakePage() *fakePage {
	return &fakePage{
		handlers:  make(map[int]func(browser.Response)),
		responses: make(map[string][]fakeResponse),
		exists:    make(map[string]bool),
		visibleOK: true,
	}
}

func (f *fakePage) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakePage) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePage) countCalls(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakePage) on(selector string, responses ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[selector] = append(f.responses[selector], responses...)
	f.exists[selector] = true
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.record("navigate %s", url)
	return f.navErr
}

func (f *fakePage) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	f.record("evaluate")
	if f.evaluate == nil {
		return true, nil
	}
	var arg any
	if len(args) > 0 {
		arg = args[0]
	}
	return f.evaluate(script, arg)
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.record("click %s", selector)

	f.mu.Lock()
	responses := f.responses[selector]
	handlers := make([]func(browser.Response), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	// Like the browser session, each handler sees responses one at a time
	// in the order they arrived.
	for _, h := range handlers {
		go func(h func(browser.Response)) {
			for _, r := range responses {
				h(r)
			}
		}(h)
	}
	return nil
}

func (f *fakePage) Fill(ctx context.Context, selector, value string) error {
	f.record("fill %s %s", selector, value)
	return nil
}

func (f *fakePage) Exists(selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[selector], nil
}

func (f *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.record("wait %s", selector)
	if !f.visibleOK {
		return fmt.Errorf("timeout waiting for %s", selector)
	}
	return nil
}

func (f *fakePage) DoubleClickAt(ctx context.Context, x, y float64) error {
	f.record("dblclick %.0f,%.0f", x, y)
	return nil
}

func (f *fakePage) Scroll(ctx context.Context, dy int) error {
	f.record("scroll %d", dy)
	return nil
}

func (f *fakePage) Content() (string, error) {
	return f.content, nil
}

func (f *fakePage) OnResponse(fn func(browser.Response)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listResponse builds a search response holding count items numbered from
// first.
func listResponse(first, count int) fakeResponse {
	items := make([]map[string]any, 0, count)
	for i := first; i < first+count; i++ {
		items = append(items, map[string]any{
			auction.FieldCaseDisplay: fmt.Sprintf("2024타경%d", i),
			auction.FieldCaseNo:      fmt.Sprintf("2024%04d", i),
			auction.FieldItemSeq:     "1",
			auction.FieldUsage:       "아파트",
			auction.FieldAddress:     fmt.Sprintf("서울특별시 강남구 역삼동 %d-1", i),
			auction.FieldMinPrice:    "100000000",
		})
	}
	body, _ := json.Marshal(map[string]any{"data": map[string]any{listKey: items}})
	return fakeResponse{url: "https://example.test/pgj/" + searchEndpoint, body: body}
}

func noiseResponse() fakeResponse {
	return fakeResponse{url: "https://example.test/pgj/codeList.on", body: []byte(`{"data":{"codes":[{"cd":"1"}]}}`)}
}
