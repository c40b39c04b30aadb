package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

// PaginationState is owned by Cursor and changed only by Advance.
type PaginationState struct {
	Page      int
	LastCount int
	Collected int
	Exhausted bool
}

type PageResult struct {
	Page       int
	Items      []auction.CapturedItem
	IsLastPage bool
}

// Cursor walks result pages through the on-screen page controls. The site
// offers no offset or token, so each page is reached by clicking its index
// and confirmed by capturing the list response it triggers.
type Cursor struct {
	page     Page
	capture  *ResponseCapture
	profile  Profile
	search   func(context.Context) error
	pageSize int
	maxItems int
	settle   Window
	state    PaginationState
	logger   *slog.Logger
}

// NewCursor builds a cursor whose first page is captured from search.
func NewCursor(page Page, capture *ResponseCapture, profile Profile, search func(context.Context) error, pageSize, maxItems int, settle Window, logger *slog.Logger) *Cursor {
	return &Cursor{
		page:     page,
		capture:  capture,
		profile:  profile,
		search:   search,
		pageSize: pageSize,
		maxItems: maxItems,
		settle:   settle,
		logger:   logger.With("component", "pagination"),
	}
}

func (c *Cursor) State() PaginationState {
	return c.state
}

// Advance loads target and returns its items. Pagination ends when the page
// control for target is missing, when a page is shorter than the page size,
// or when the item budget is used up; the budget cuts a page short
// regardless of what remains. A capture timeout returns an error wrapping
// ErrPageSkip and leaves the cursor ready for the next page.
func (c *Cursor) Advance(ctx context.Context, target int) (PageResult, error) {
	if c.state.Exhausted {
		return PageResult{Page: target, IsLastPage: true}, nil
	}
	if target <= c.state.Page {
		return PageResult{}, fmt.Errorf("page %d already visited (at %d)", target, c.state.Page)
	}

	trigger := c.search
	if target > 1 {
		sel := c.profile.PageControlSelector(target)
		if sel == "" {
			return c.exhaust(target, "single page list"), nil
		}

		ok, err := c.page.Exists(sel)
		if err != nil {
			c.state.Page = target
			return PageResult{Page: target}, fmt.Errorf("%w: page %d control lookup: %w", ErrPageSkip, target, err)
		}
		if !ok {
			return c.exhaust(target, "page control missing"), nil
		}

		trigger = func(ctx context.Context) error {
			return c.page.Click(ctx, sel)
		}
	}

	payload, err := c.capture.Await(ctx, c.profile.Match, trigger)
	c.state.Page = target
	if err != nil {
		if ctx.Err() != nil {
			return PageResult{Page: target}, ctx.Err()
		}
		c.logger.Warn("page skipped", "page", target, "error", err)
		return PageResult{Page: target}, fmt.Errorf("%w: page %d: %w", ErrPageSkip, target, err)
	}

	items := payload.Items
	c.state.LastCount = len(items)
	result := PageResult{Page: target}

	if len(items) < c.pageSize {
		result.IsLastPage = true
	}

	if remaining := c.maxItems - c.state.Collected; len(items) >= remaining {
		items = items[:max(remaining, 0)]
		result.IsLastPage = true
	}

	c.state.Collected += len(items)
	c.state.Exhausted = result.IsLastPage
	result.Items = items

	c.logger.Info("page captured",
		"page", target,
		"items", len(items),
		"collected", c.state.Collected,
		"last_page", result.IsLastPage)

	if !result.IsLastPage {
		if err := c.settle.Pause(ctx); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (c *Cursor) exhaust(target int, reason string) PageResult {
	c.state.Exhausted = true
	c.logger.Info("pagination exhausted", "page", target, "reason", reason)
	return PageResult{Page: target, IsLastPage: true}
}
