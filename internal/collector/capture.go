package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
)

// Match selects the list response among all page traffic.
type Match struct {
	Endpoint    string
	ListKey     string
	MarkerField string
}

func DefaultMatch() Match {
	return Match{
		Endpoint:    searchEndpoint,
		ListKey:     listKey,
		MarkerField: auction.FieldCaseDisplay,
	}
}

// Payload is one captured list response.
type Payload struct {
	URL     string
	ListKey string
	Items   []auction.CapturedItem
}

type ResponseCapture struct {
	page     Page
	polls    int
	interval time.Duration
	logger   *slog.Logger
}

func NewResponseCapture(page Page, polls int, interval time.Duration, logger *slog.Logger) *ResponseCapture {
	if polls < 1 {
		polls = 1
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ResponseCapture{
		page:     page,
		polls:    polls,
		interval: interval,
		logger:   logger.With("component", "response_capture"),
	}
}

// Await subscribes to page responses, runs trigger, and returns the first
// response that satisfies m. Responses are checked in arrival order, so a
// slow body still wins over a later match; later matches are dropped.
// When nothing matches within the poll budget it returns ErrCaptureTimeout.
func (c *ResponseCapture) Await(ctx context.Context, m Match, trigger func(context.Context) error) (*Payload, error) {
	found := make(chan *Payload, 1)
	var matched atomic.Bool

	cancel := c.page.OnResponse(func(r browser.Response) {
		if matched.Load() {
			return
		}
		url := r.URL()
		if !strings.Contains(url, m.Endpoint) {
			return
		}

		body, err := r.Body()
		if err != nil {
			c.logger.Debug("failed to read response body", "url", url, "error", err)
			return
		}

		p, ok := ParsePayload(body, m)
		if !ok {
			return
		}
		p.URL = url

		if matched.CompareAndSwap(false, true) {
			found <- p
		}
	})
	defer cancel()

	if trigger != nil {
		if err := trigger(ctx); err != nil {
			return nil, fmt.Errorf("capture trigger failed: %w", err)
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for i := 0; i < c.polls; i++ {
		select {
		case p := <-found:
			c.logger.Debug("response captured", "url", p.URL, "items", len(p.Items), "polls", i)
			return p, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	select {
	case p := <-found:
		return p, nil
	default:
	}

	return nil, ErrCaptureTimeout
}

// ParsePayload checks the response shape: a JSON object whose data field is
// an object holding a non-empty list of items carrying m.MarkerField. The
// list named m.ListKey is preferred; otherwise the first qualifying list by
// key order is used.
func ParsePayload(body []byte, m Match) (*Payload, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}

	data, ok := root["data"].(map[string]any)
	if !ok {
		return nil, false
	}

	if items, ok := qualifyingList(data[m.ListKey], m.MarkerField); ok {
		return &Payload{ListKey: m.ListKey, Items: items}, true
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if items, ok := qualifyingList(data[k], m.MarkerField); ok {
			return &Payload{ListKey: k, Items: items}, true
		}
	}

	return nil, false
}

func qualifyingList(v any, marker string) ([]auction.CapturedItem, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}

	first, ok := list[0].(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := first[marker]; !ok {
		return nil, false
	}

	items := make([]auction.CapturedItem, 0, len(list))
	for _, e := range list {
		if obj, ok := e.(map[string]any); ok {
			items = append(items, auction.CapturedItem(obj))
		}
	}
	return items, true
}
