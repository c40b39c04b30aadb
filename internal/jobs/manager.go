// Package jobs queues collection runs and works them off one at a time.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/collector"
)

// RunFunc performs one collection. A non-nil summary is stored even when
// err is set.
type RunFunc func(ctx context.Context, run *Run) (*collector.Summary, error)

type Manager struct {
	repo            Repository
	run             RunFunc
	interval        time.Duration
	defaultMaxItems int
	logger          *slog.Logger
}

type ManagerConfig struct {
	Interval        time.Duration
	DefaultMaxItems int
}

func NewManager(repo Repository, run RunFunc, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.DefaultMaxItems <= 0 {
		cfg.DefaultMaxItems = 50
	}
	return &Manager{
		repo:            repo,
		run:             run,
		interval:        cfg.Interval,
		defaultMaxItems: cfg.DefaultMaxItems,
		logger:          logger.With("component", "job_manager"),
	}
}

// CreateRunRequest is the queued form of a collection request. Dates are
// YYYYMMDD or YYYY-MM-DD.
type CreateRunRequest struct {
	Source    string `json:"source"`
	Region    string `json:"region"`
	Category  string `json:"category"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	MaxItems  int    `json:"max_items"`
	Enrich    *bool  `json:"enrich"`
}

// ValidationError reports a request that cannot be queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// CreateRun validates req and queues it as a pending run.
func (m *Manager) CreateRun(ctx context.Context, req CreateRunRequest) (*Run, error) {
	source, err := auction.ParseSourceType(req.Source)
	if err != nil {
		return nil, &ValidationError{Field: "source", Reason: err.Error()}
	}

	run := &Run{
		Source:   source,
		Region:   strings.TrimSpace(req.Region),
		Category: strings.TrimSpace(req.Category),
		MaxItems: req.MaxItems,
		Enrich:   true,
		Status:   StatusPending,
	}
	if run.MaxItems <= 0 {
		run.MaxItems = m.defaultMaxItems
	}
	if req.Enrich != nil {
		run.Enrich = *req.Enrich
	}

	if run.StartDate, err = normalizeDay(req.StartDate); err != nil {
		return nil, &ValidationError{Field: "start_date", Reason: err.Error()}
	}
	if run.EndDate, err = normalizeDay(req.EndDate); err != nil {
		return nil, &ValidationError{Field: "end_date", Reason: err.Error()}
	}
	if err := run.Filter().Validate(); err != nil {
		return nil, &ValidationError{Field: "end_date", Reason: err.Error()}
	}

	if err := m.repo.Create(ctx, run); err != nil {
		return nil, err
	}

	m.logger.Info("run created", "id", run.ID, "source", run.Source, "max_items", run.MaxItems)
	return run, nil
}

func (m *Manager) GetRun(ctx context.Context, id string) (*Run, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	return m.repo.List(ctx, limit)
}

func normalizeDay(s string) (*string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := auction.ParseDay(s, time.Local)
	if err != nil {
		return nil, err
	}
	day := t.Format("2006-01-02")
	return &day, nil
}
