package database

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB connects to TEST_DATABASE_URL, migrates it and empties every
// table. Tests are skipped when the variable is not set.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, Migrate(dsn, slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx := context.Background()
	db, err := New(ctx, Config{URL: dsn, MaxConns: 4})
	require.NoError(t, err)

	_, err = db.Exec(ctx, `TRUNCATE auction_records, collection_runs, outbox_event`)
	require.NoError(t, err)

	t.Cleanup(db.Close)
	return db
}
