package jobs

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/database"
)

func setupRepo(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, database.Migrate(dsn, testLogger()))

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{URL: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Exec(ctx, `TRUNCATE collection_runs`)
	require.NoError(t, err)

	return NewPostgresRepository(db)
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	start := "2024-03-01"
	run := &Run{Source: auction.SourceSearch, Region: "서울특별시", StartDate: &start, MaxItems: 20, Enrich: true}
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, start, *got.StartDate)
	assert.Nil(t, got.EndDate)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, run.ID, claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	next, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	summary := &collector.Summary{
		Source:  auction.SourceSearch,
		Saved:   7,
		Records: []auction.Record{{SiteID: "auction_1_1"}},
	}
	require.NoError(t, repo.Complete(ctx, run.ID, summary))

	done, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Summary)
	assert.Equal(t, 7, done.Summary.Saved)
	assert.Empty(t, done.Summary.Records, "stored summaries omit records")
	assert.NotNil(t, done.FinishedAt)
}

func TestPostgresRepository_Fail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	run := &Run{Source: auction.SourcePopular, MaxItems: 10}
	require.NoError(t, repo.Create(ctx, run))

	require.NoError(t, repo.Fail(ctx, run.ID, nil, errors.New("navigate: timeout")))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "navigate: timeout", got.Error)
	assert.Nil(t, got.Summary)
}

func TestPostgresRepository_NotFound(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = repo.Get(ctx, "6f1c1f4e-8a55-4a43-9a0e-3d1f6f0f2b11")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = repo.Complete(ctx, "6f1c1f4e-8a55-4a43-9a0e-3d1f6f0f2b11", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestPostgresRepository_List(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &Run{Source: auction.SourceSearch, MaxItems: 10}))
	}

	runs, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
