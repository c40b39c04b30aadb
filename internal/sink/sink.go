// Package sink persists collected records together with their outbox events.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/collector"
)

type Store interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
	UpsertRecordTx(ctx context.Context, tx pgx.Tx, rec *auction.Record) error
	PatchEnrichmentTx(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error
}

type EventPublisher interface {
	RecordSaved(ctx context.Context, tx pgx.Tx, rec auction.Record) error
	RecordEnriched(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error
}

// RecordSink writes each record change and its event in one transaction.
// Errors wrap collector.ErrWriteFailure.
type RecordSink struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
}

var _ collector.RecordSink = (*RecordSink)(nil)

// New returns a sink over store. publisher may be nil, in which case no
// events are written.
func New(store Store, publisher EventPublisher, logger *slog.Logger) *RecordSink {
	return &RecordSink{
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "record_sink"),
	}
}

func (s *RecordSink) Upsert(ctx context.Context, rec auction.Record) error {
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.UpsertRecordTx(ctx, tx, &rec); err != nil {
			return err
		}
		if s.publisher == nil {
			return nil
		}
		return s.publisher.RecordSaved(ctx, tx, rec)
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", collector.ErrWriteFailure, rec.SiteID, err)
	}

	s.logger.Debug("record saved", "site_id", rec.SiteID, "source", rec.SourceType)
	return nil
}

// Patch applies e to the stored record. An empty enrichment is a no-op.
func (s *RecordSink) Patch(ctx context.Context, siteID string, source auction.SourceType, e auction.Enrichment) error {
	if e.IsEmpty() {
		return nil
	}

	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.PatchEnrichmentTx(ctx, tx, siteID, source, e); err != nil {
			return err
		}
		if s.publisher == nil {
			return nil
		}
		return s.publisher.RecordEnriched(ctx, tx, siteID, source, e)
	})
	if err != nil {
		return fmt.Errorf("%w: patch %s: %w", collector.ErrWriteFailure, siteID, err)
	}

	s.logger.Debug("record patched", "site_id", siteID, "source", source)
	return nil
}
