package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/database"
)

type EventType string

const (
	EventTypeRecordSaved    EventType = "AUCTION_RECORD_SAVED"
	EventTypeRecordEnriched EventType = "AUCTION_RECORD_ENRICHED"

	aggregateType = "auction_record"
)

// RecordSavedPayload announces the basic fields of an upserted record.
type RecordSavedPayload struct {
	EventID      string             `json:"event_id"`
	EventType    string             `json:"event_type"`
	Timestamp    time.Time          `json:"timestamp"`
	SiteID       string             `json:"site_id"`
	SourceType   auction.SourceType `json:"source_type"`
	CaseNumber   string             `json:"case_number"`
	Title        string             `json:"title"`
	Address      string             `json:"address"`
	Category     auction.Category   `json:"category"`
	MinimumPrice *string            `json:"minimum_price,omitempty"`
	AuctionDate  *string            `json:"auction_date,omitempty"`
	DetailLink   string             `json:"detail_link"`
	Interest     *int               `json:"interest_count,omitempty"`
}

// RecordEnrichedPayload carries the fields a detail pass added.
type RecordEnrichedPayload struct {
	EventID    string             `json:"event_id"`
	EventType  string             `json:"event_type"`
	Timestamp  time.Time          `json:"timestamp"`
	SiteID     string             `json:"site_id"`
	SourceType auction.SourceType `json:"source_type"`
	auction.Enrichment
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes record events to the outbox inside the caller's
// transaction, so an event exists exactly when its change was committed.
type Publisher struct {
	outbox outboxWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(outbox *database.OutboxRepository, logger *slog.Logger) *Publisher {
	return newPublisher(outbox, logger)
}

func newPublisher(outbox outboxWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) RecordSaved(ctx context.Context, tx pgx.Tx, rec auction.Record) error {
	payload := &RecordSavedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeRecordSaved),
		Timestamp:    p.now(),
		SiteID:       rec.SiteID,
		SourceType:   rec.SourceType,
		CaseNumber:   rec.CaseNumber,
		Title:        rec.Title,
		Address:      rec.Address,
		Category:     rec.Category,
		MinimumPrice: rec.MinimumPrice,
		AuctionDate:  rec.AuctionDate,
		DetailLink:   rec.DetailLink,
		Interest:     rec.InterestCount,
	}
	return p.write(ctx, tx, EventTypeRecordSaved, rec.SiteID, payload)
}

func (p *Publisher) RecordEnriched(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error {
	payload := &RecordEnrichedPayload{
		EventID:    uuid.New().String(),
		EventType:  string(EventTypeRecordEnriched),
		Timestamp:  p.now(),
		SiteID:     siteID,
		SourceType: source,
		Enrichment: e,
	}
	return p.write(ctx, tx, EventTypeRecordEnriched, siteID, payload)
}

func (p *Publisher) write(ctx context.Context, tx pgx.Tx, eventType EventType, siteID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   siteID,
		EventType:     string(eventType),
		Payload:       data,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug("event written to outbox",
		"type", eventType,
		"site_id", siteID,
		"outbox_id", event.ID)

	return nil
}
