package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/internal/events"
)

func setupConsumer(t *testing.T) (*Consumer, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := NewConsumer(rdb, Config{Block: -1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.EnsureGroup(context.Background()))
	return c, rdb
}

func addEvent(t *testing.T, rdb *redis.Client, eventType events.EventType, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	envelope, err := json.Marshal(database.StreamMessage{
		ID:            "evt",
		Type:          string(eventType),
		AggregateType: "auction_record",
		Timestamp:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
		Payload:       data,
	})
	require.NoError(t, err)

	err = rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: database.DefaultStream,
		Values: map[string]any{"data": string(envelope), "event_type": string(eventType)},
	}).Err()
	require.NoError(t, err)
}

func TestConsumer_ProjectsSavedThenEnriched(t *testing.T) {
	c, rdb := setupConsumer(t)
	ctx := context.Background()

	price := "100000000"
	addEvent(t, rdb, events.EventTypeRecordSaved, events.RecordSavedPayload{
		SiteID:       "auction_2024001_1",
		SourceType:   auction.SourceSearch,
		Title:        "아파트 - 서울특별시 강남구",
		Category:     auction.CategoryApartment,
		MinimumPrice: &price,
	})

	url := "https://blob.test/2024001_1_20240301.png"
	views := 12
	addEvent(t, rdb, events.EventTypeRecordEnriched, events.RecordEnrichedPayload{
		SiteID:     "auction_2024001_1",
		SourceType: auction.SourceSearch,
		Enrichment: auction.Enrichment{ThumbnailURL: &url, ViewCount: &views},
	})

	n, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	key := RecordKey(auction.SourceSearch, "auction_2024001_1")
	got, err := rdb.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "아파트 - 서울특별시 강남구", got["title"])
	assert.Equal(t, "100000000", got["minimum_price"])
	assert.Equal(t, url, got["thumbnail_url"])
	assert.Equal(t, "12", got["view_count"])
	assert.Equal(t, "2024-03-01T09:00:00Z", got["updated_at"])

	recent, err := rdb.ZRange(ctx, RecentKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{key}, recent)
}

func TestConsumer_SkipsUnknownEvents(t *testing.T) {
	c, rdb := setupConsumer(t)

	addEvent(t, rdb, events.EventType("AUCTION_SCHEDULE_CHANGED"), map[string]string{"case_no": "2024타경1"})

	n, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unknown events are acknowledged")
}

func TestConsumer_LeavesMalformedPending(t *testing.T) {
	c, rdb := setupConsumer(t)
	ctx := context.Background()

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: database.DefaultStream,
		Values: map[string]any{"data": "{not json"},
	}).Err())

	n, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "pending messages are not redelivered to new reads")
}

func TestConsumer_EmptyStream(t *testing.T) {
	c, _ := setupConsumer(t)

	n, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumer_EnsureGroupIsRepeatable(t *testing.T) {
	c, _ := setupConsumer(t)
	assert.NoError(t, c.EnsureGroup(context.Background()))
}

func TestHandle_MissingData(t *testing.T) {
	c, _ := setupConsumer(t)

	err := c.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{}})
	assert.ErrorIs(t, err, ErrMalformed)
}
