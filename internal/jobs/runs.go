package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/database"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one queued collection over a source and filter.
type Run struct {
	ID         string             `json:"id"`
	Source     auction.SourceType `json:"source"`
	Region     string             `json:"region,omitempty"`
	Category   string             `json:"category,omitempty"`
	StartDate  *string            `json:"start_date,omitempty"`
	EndDate    *string            `json:"end_date,omitempty"`
	MaxItems   int                `json:"max_items"`
	Enrich     bool               `json:"enrich"`
	Status     Status             `json:"status"`
	Summary    *collector.Summary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Filter rebuilds the search filter the run was queued with.
func (r *Run) Filter() auction.Filter {
	f := auction.Filter{Region: r.Region, Category: r.Category}
	if r.StartDate != nil {
		f.Start, _ = auction.ParseDay(*r.StartDate, time.Local)
	}
	if r.EndDate != nil {
		f.End, _ = auction.ParseDay(*r.EndDate, time.Local)
	}
	return f
}

// Repository stores runs.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]*Run, error)
	// ClaimNext marks the oldest pending run as running and returns it, or
	// nil when the queue is empty.
	ClaimNext(ctx context.Context) (*Run, error)
	Complete(ctx context.Context, id string, summary *collector.Summary) error
	Fail(ctx context.Context, id string, summary *collector.Summary, runErr error) error
}

type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const runColumns = `
	id::text, source_type, region, category,
	to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
	max_items, enrich, status, summary, error,
	created_at, started_at, finished_at`

func (p *PostgresRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO collection_runs
		(id, source_type, region, category, start_date, end_date, max_items, enrich, status, created_at)
		VALUES ($1, $2, $3, $4, $5::text::date, $6::text::date, $7, $8, $9, $10)
	`

	_, err := p.db.Exec(ctx, query,
		run.ID, string(run.Source), run.Region, run.Category,
		run.StartDate, run.EndDate, run.MaxItems, run.Enrich,
		string(run.Status), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (p *PostgresRepository) Get(ctx context.Context, id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}

	run, err := scanRun(p.db.QueryRow(ctx, `SELECT `+runColumns+` FROM collection_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

func (p *PostgresRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := p.db.Query(ctx,
		`SELECT `+runColumns+` FROM collection_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func (p *PostgresRepository) ClaimNext(ctx context.Context) (*Run, error) {
	query := `
		UPDATE collection_runs
		SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM collection_runs
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns

	run, err := scanRun(p.db.QueryRow(ctx, query, string(StatusRunning), string(StatusPending)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim run: %w", err)
	}

	return run, nil
}

func (p *PostgresRepository) Complete(ctx context.Context, id string, summary *collector.Summary) error {
	return p.finish(ctx, id, StatusCompleted, summary, nil)
}

func (p *PostgresRepository) Fail(ctx context.Context, id string, summary *collector.Summary, runErr error) error {
	return p.finish(ctx, id, StatusFailed, summary, runErr)
}

func (p *PostgresRepository) finish(ctx context.Context, id string, status Status, summary *collector.Summary, runErr error) error {
	var data []byte
	if summary != nil {
		s := *summary
		s.Records = nil
		var err error
		if data, err = json.Marshal(s); err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
	}

	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}

	tag, err := p.db.Exec(ctx, `
		UPDATE collection_runs
		SET status = $2, summary = $3, error = $4, finished_at = NOW()
		WHERE id = $1
	`, id, string(status), data, msg)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	return nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run     Run
		status  string
		source  string
		summary []byte
		runErr  *string
	)
	err := row.Scan(
		&run.ID, &source, &run.Region, &run.Category,
		&run.StartDate, &run.EndDate,
		&run.MaxItems, &run.Enrich, &status, &summary, &runErr,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Source = auction.SourceType(source)
	run.Status = Status(status)
	if runErr != nil {
		run.Error = *runErr
	}
	if len(summary) > 0 {
		run.Summary = &collector.Summary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
	}

	return &run, nil
}
