package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/collector"
	"github.com/maltedev/court-auction-scraper/internal/database"
)

type recordKey struct {
	siteID string
	source auction.SourceType
}

// memStore commits a transaction's writes only when fn succeeds.
type memStore struct {
	records map[recordKey]auction.Record
	pending map[recordKey]auction.Record
	failing bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[recordKey]auction.Record)}
}

func (m *memStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	m.pending = make(map[recordKey]auction.Record)
	if err := fn(nil); err != nil {
		m.pending = nil
		return err
	}
	for k, v := range m.pending {
		m.records[k] = v
	}
	m.pending = nil
	return nil
}

func (m *memStore) UpsertRecordTx(ctx context.Context, tx pgx.Tx, rec *auction.Record) error {
	if m.failing {
		return errors.New("connection reset")
	}
	k := recordKey{rec.SiteID, rec.SourceType}
	next := *rec
	if prev, ok := m.records[k]; ok {
		next.Apply(auction.Enrichment{
			ThumbnailURL: prev.ThumbnailURL,
			BuildingInfo: prev.BuildingInfo,
			ViewCount:    prev.ViewCount,
		})
	}
	m.pending[k] = next
	return nil
}

func (m *memStore) PatchEnrichmentTx(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error {
	k := recordKey{siteID, source}
	rec, ok := m.records[k]
	if !ok {
		return database.ErrNotFound
	}
	rec.Apply(e)
	m.pending[k] = rec
	return nil
}

type countingPublisher struct {
	saved    int
	enriched int
	err      error
}

func (p *countingPublisher) RecordSaved(ctx context.Context, tx pgx.Tx, rec auction.Record) error {
	if p.err != nil {
		return p.err
	}
	p.saved++
	return nil
}

func (p *countingPublisher) RecordEnriched(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error {
	if p.err != nil {
		return p.err
	}
	p.enriched++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(siteID string) auction.Record {
	return auction.Record{
		SiteID:     siteID,
		SourceType: auction.SourceSearch,
		Title:      "아파트 - 서울특별시 강남구",
		Category:   auction.CategoryApartment,
		DatePosted: "2024-03-01",
	}
}

func TestRecordSink_UpsertIsIdempotent(t *testing.T) {
	store := newMemStore()
	pub := &countingPublisher{}
	s := New(store, pub, testLogger())
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("auction_1_1")))
	require.NoError(t, s.Upsert(ctx, record("auction_1_1")))

	assert.Len(t, store.records, 1)
	assert.Equal(t, 2, pub.saved)
}

func TestRecordSink_PatchSurvivesReupsert(t *testing.T) {
	store := newMemStore()
	pub := &countingPublisher{}
	s := New(store, pub, testLogger())
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, record("auction_1_1")))

	url := "https://blob.test/a.png"
	require.NoError(t, s.Patch(ctx, "auction_1_1", auction.SourceSearch, auction.Enrichment{ThumbnailURL: &url}))
	require.NoError(t, s.Upsert(ctx, record("auction_1_1")))

	got := store.records[recordKey{"auction_1_1", auction.SourceSearch}]
	require.NotNil(t, got.ThumbnailURL)
	assert.Equal(t, url, *got.ThumbnailURL)
	assert.Equal(t, 1, pub.enriched)
}

func TestRecordSink_EmptyPatchIsNoop(t *testing.T) {
	store := newMemStore()
	pub := &countingPublisher{}
	s := New(store, pub, testLogger())

	require.NoError(t, s.Patch(context.Background(), "auction_missing_1", auction.SourceSearch, auction.Enrichment{}))
	assert.Zero(t, pub.enriched)
}

func TestRecordSink_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("store error", func(t *testing.T) {
		store := newMemStore()
		store.failing = true
		s := New(store, nil, testLogger())

		err := s.Upsert(ctx, record("auction_1_1"))
		assert.ErrorIs(t, err, collector.ErrWriteFailure)
	})

	t.Run("publisher error rolls back the record", func(t *testing.T) {
		store := newMemStore()
		s := New(store, &countingPublisher{err: errors.New("outbox unavailable")}, testLogger())

		err := s.Upsert(ctx, record("auction_1_1"))
		assert.ErrorIs(t, err, collector.ErrWriteFailure)
		assert.Empty(t, store.records)
	})

	t.Run("patch of missing record", func(t *testing.T) {
		s := New(newMemStore(), nil, testLogger())
		note := "일괄매각"

		err := s.Patch(ctx, "auction_missing_1", auction.SourceSearch, auction.Enrichment{Note: &note})
		assert.ErrorIs(t, err, collector.ErrWriteFailure)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}
