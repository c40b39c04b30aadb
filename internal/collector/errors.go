package collector

import "errors"

// Failures are contained at the smallest scope that can absorb them:
// an item degrades, a page is skipped, and only a missing entry point
// aborts the run.
var (
	ErrFatal          = errors.New("collector: search entry point unavailable")
	ErrPageSkip       = errors.New("collector: page skipped")
	ErrItemDegraded   = errors.New("collector: item degraded")
	ErrWriteFailure   = errors.New("collector: write failed")
	ErrCaptureTimeout = errors.New("collector: response capture timed out")

	ErrRowNotFound   = errors.New("collector: no result row matches address")
	ErrNotDetailView = errors.New("collector: detail view did not load")
	ErrNoImage       = errors.New("collector: no embedded image found")
)
