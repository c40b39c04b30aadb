// Package stream consumes relayed record events and keeps a Redis read
// model of the latest state of every record.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/internal/events"
)

const RecentKey = "auction:recent"

var ErrMalformed = errors.New("malformed stream message")

// RecordKey is the hash holding the projected fields of one record.
func RecordKey(source auction.SourceType, siteID string) string {
	return "auction:record:" + string(source) + ":" + siteID
}

type Config struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	// Block is how long one read waits for messages. A negative value
	// returns immediately.
	Block time.Duration
}

type Consumer struct {
	rdb    redis.Cmdable
	cfg    Config
	logger *slog.Logger
}

func NewConsumer(rdb redis.Cmdable, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = "auction-record-projector"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.With("component", "stream_consumer", "stream", cfg.Stream, "group", cfg.Group),
	}
}

// EnsureGroup creates the consumer group and the stream if needed.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("starting consumer")

	for {
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped")
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one batch of new messages and projects them. Messages that
// fail are logged and left pending. It returns the number acknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			if err := c.Handle(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}

	return acked, nil
}

// Handle applies one message to the read model. Unknown event types are
// accepted and ignored.
func (c *Consumer) Handle(ctx context.Context, msg redis.XMessage) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}

	var envelope database.StreamMessage
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	ts, err := time.Parse(time.RFC3339, envelope.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	switch events.EventType(envelope.Type) {
	case events.EventTypeRecordSaved:
		var p events.RecordSavedPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return c.project(ctx, p.SourceType, p.SiteID, ts, savedFields(p))

	case events.EventTypeRecordEnriched:
		var p events.RecordEnrichedPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return c.project(ctx, p.SourceType, p.SiteID, ts, enrichedFields(p.Enrichment))

	default:
		c.logger.Debug("skipping event", "id", msg.ID, "type", envelope.Type)
		return nil
	}
}

func (c *Consumer) project(ctx context.Context, source auction.SourceType, siteID string, ts time.Time, fields map[string]any) error {
	if siteID == "" {
		return fmt.Errorf("%w: missing site id", ErrMalformed)
	}
	fields["updated_at"] = ts.UTC().Format(time.RFC3339)

	key := RecordKey(source, siteID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.ZAdd(ctx, RecentKey, redis.Z{Score: float64(ts.Unix()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to project %s: %w", siteID, err)
	}

	c.logger.Debug("record projected", "key", key, "fields", len(fields))
	return nil
}

func savedFields(p events.RecordSavedPayload) map[string]any {
	f := map[string]any{
		"site_id":     p.SiteID,
		"source_type": string(p.SourceType),
		"case_number": p.CaseNumber,
		"title":       p.Title,
		"address":     p.Address,
		"category":    string(p.Category),
		"detail_link": p.DetailLink,
	}
	if p.MinimumPrice != nil {
		f["minimum_price"] = *p.MinimumPrice
	}
	if p.AuctionDate != nil {
		f["auction_date"] = *p.AuctionDate
	}
	if p.Interest != nil {
		f["interest_count"] = strconv.Itoa(*p.Interest)
	}
	return f
}

func enrichedFields(e auction.Enrichment) map[string]any {
	f := map[string]any{}
	if e.ThumbnailURL != nil {
		f["thumbnail_url"] = *e.ThumbnailURL
	}
	if e.BuildingInfo != nil {
		f["building_info"] = *e.BuildingInfo
	}
	if e.Note != nil {
		f["note"] = *e.Note
	}
	if e.ViewCount != nil {
		f["view_count"] = strconv.Itoa(*e.ViewCount)
	}
	return f
}
