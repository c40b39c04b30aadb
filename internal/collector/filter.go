package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

const (
	selectOptionJS = `([id, text]) => {
  const el = document.getElementById(id);
  if (!el || !el.options) return false;
  const opt = Array.from(el.options).find(o => (o.text || '').includes(text));
  if (!opt) return false;
  el.value = opt.value;
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
}`

	chooseRadioJS = `([ids, label]) => {
  for (const id of ids) {
    const el = document.getElementById(id);
    if (el) { el.click(); return true; }
  }
  const lbl = Array.from(document.querySelectorAll('label')).find(l => (l.textContent || '').includes(label));
  if (lbl) { lbl.click(); return true; }
  return false;
}`
)

type formStep struct {
	name string
	id   string
	text string
}

// FilterNavigator drives the search form into a given filter state.
type FilterNavigator struct {
	page         Page
	profile      Profile
	timing       Timing
	readyTimeout time.Duration
	logger       *slog.Logger
}

func NewFilterNavigator(page Page, profile Profile, timing Timing, readyTimeout time.Duration, logger *slog.Logger) *FilterNavigator {
	return &FilterNavigator{
		page:         page,
		profile:      profile,
		timing:       timing,
		readyTimeout: readyTimeout,
		logger:       logger.With("component", "filter_navigator"),
	}
}

// Open loads the listing page and waits for its search trigger. Failure here
// is fatal to the run.
func (n *FilterNavigator) Open(ctx context.Context) error {
	if err := n.page.Navigate(ctx, n.profile.URL); err != nil {
		return fmt.Errorf("%w: navigate: %w", ErrFatal, err)
	}

	if err := n.page.WaitVisible(ctx, n.profile.SearchButton, n.readyTimeout); err != nil {
		return fmt.Errorf("%w: search trigger %s not visible: %w", ErrFatal, n.profile.SearchButton, err)
	}

	if err := n.timing.Init.Pause(ctx); err != nil {
		return err
	}

	if h, ok := n.page.(humanizer); ok {
		if err := h.Humanize(ctx); err != nil {
			n.logger.Debug("humanize failed", "error", err)
		}
	}

	return nil
}

// Apply walks the form cascade: location mode, region, property class
// (large, middle, small), then the date range. Options are matched by
// substring. A missing option is logged and skipped; only cancellation
// stops the walk.
func (n *FilterNavigator) Apply(ctx context.Context, f auction.Filter) error {
	if !n.profile.Filters {
		return nil
	}
	if err := f.Validate(); err != nil {
		return err
	}

	ok, err := n.eval(ctx, chooseRadioJS, []any{[]string{idLocationRadio, idLocationRadioAlt}, locationLabel})
	if err != nil && ctx.Err() != nil {
		return err
	}
	if !ok {
		n.logger.Warn("location mode radio not found", "error", err)
	}
	if err := n.timing.Cascade.Pause(ctx); err != nil {
		return err
	}

	steps := []formStep{{"region", idRegion, f.Region}}
	if path, found := auction.ResolveFormPath(f.Category); found {
		steps = append(steps,
			formStep{"large_class", idLargeClass, path.Large},
			formStep{"middle_class", idMiddleClass, path.Middle},
			formStep{"small_class", idSmallClass, path.Small},
		)
	}

	for _, s := range steps {
		if s.text == "" {
			continue
		}
		if err := n.SelectOption(ctx, s.id, s.text); err != nil {
			if ctx.Err() != nil {
				return err
			}
			n.logger.Warn("filter option not applied", "step", s.name, "text", s.text, "error", err)
		}
		if err := n.timing.Cascade.Pause(ctx); err != nil {
			return err
		}
	}

	start, end := f.Start, f.End
	if start.IsZero() || end.IsZero() {
		ds, de := auction.DefaultWindow(time.Now())
		if start.IsZero() {
			start = ds
		}
		if end.IsZero() {
			end = de
		}
	}

	for _, d := range []struct {
		sel string
		day time.Time
	}{{selStartDate, start}, {selEndDate, end}} {
		if err := n.page.Fill(ctx, d.sel, d.day.Format("20060102")); err != nil {
			if ctx.Err() != nil {
				return err
			}
			n.logger.Warn("date field not filled", "selector", d.sel, "error", err)
		}
		if err := n.timing.Fill.Pause(ctx); err != nil {
			return err
		}
	}

	n.logger.Info("filters applied",
		"region", f.Region,
		"category", f.Category,
		"start", start.Format("20060102"),
		"end", end.Format("20060102"))

	return nil
}

var errOptionNotFound = errors.New("option not found")

// SelectOption picks the first option of select id whose text contains text
// and fires its change event.
func (n *FilterNavigator) SelectOption(ctx context.Context, id, text string) error {
	ok, err := n.eval(ctx, selectOptionJS, []any{id, text})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %q: %w", id, text, errOptionNotFound)
	}
	return nil
}

// Submit clicks the search trigger.
func (n *FilterNavigator) Submit(ctx context.Context) error {
	return n.page.Click(ctx, n.profile.SearchButton)
}

func (n *FilterNavigator) eval(ctx context.Context, script string, arg any) (bool, error) {
	v, err := n.page.Evaluate(ctx, script, arg)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("evaluate: %w", err)
	}
	return boolResult(v), nil
}
