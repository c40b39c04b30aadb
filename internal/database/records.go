package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recordColumns = `
	site_id, source_type, composite_key, case_number, court_code, item_seq,
	title, address, usage, category, department, status, fail_count, phone,
	detail_link, minimum_price, appraised_price,
	to_char(date_posted, 'YYYY-MM-DD'),
	to_char(auction_date, 'YYYY-MM-DD'),
	to_char(result_date, 'YYYY-MM-DD'), interest_count,
	thumbnail_url, building_info, note, view_count`

// UpsertRecord writes the basic fields of rec keyed by (site_id,
// source_type). Enrichment columns already stored are kept; note is only
// replaced by a non-null value and view_count is never written here.
func (db *DB) UpsertRecord(ctx context.Context, rec *auction.Record) error {
	return upsertRecord(ctx, db.pool, rec)
}

func (db *DB) UpsertRecordTx(ctx context.Context, tx pgx.Tx, rec *auction.Record) error {
	return upsertRecord(ctx, tx, rec)
}

func upsertRecord(ctx context.Context, q querier, rec *auction.Record) error {
	query := `
		INSERT INTO auction_records (
			site_id, source_type, composite_key, case_number, court_code, item_seq,
			title, address, usage, category, department, status, fail_count, phone,
			detail_link, minimum_price, appraised_price,
			date_posted, auction_date, result_date, interest_count, note
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18::text::date, $19::text::date, $20::text::date, $21, $22
		)
		ON CONFLICT (site_id, source_type) DO UPDATE SET
			composite_key = EXCLUDED.composite_key,
			case_number = EXCLUDED.case_number,
			court_code = EXCLUDED.court_code,
			item_seq = EXCLUDED.item_seq,
			title = EXCLUDED.title,
			address = EXCLUDED.address,
			usage = EXCLUDED.usage,
			category = EXCLUDED.category,
			department = EXCLUDED.department,
			status = EXCLUDED.status,
			fail_count = EXCLUDED.fail_count,
			phone = EXCLUDED.phone,
			detail_link = EXCLUDED.detail_link,
			minimum_price = EXCLUDED.minimum_price,
			appraised_price = EXCLUDED.appraised_price,
			date_posted = EXCLUDED.date_posted,
			auction_date = EXCLUDED.auction_date,
			result_date = EXCLUDED.result_date,
			interest_count = EXCLUDED.interest_count,
			note = COALESCE(EXCLUDED.note, auction_records.note),
			updated_at = NOW()`

	_, err := q.Exec(ctx, query,
		rec.SiteID, string(rec.SourceType), string(rec.Key), rec.CaseNumber, rec.CourtCode, rec.ItemSeq,
		rec.Title, rec.Address, rec.Usage, string(rec.Category), rec.Department, rec.Status, rec.FailCount, rec.Phone,
		rec.DetailLink, rec.MinimumPrice, rec.AppraisedPrice,
		rec.DatePosted, rec.AuctionDate, rec.ResultDate, rec.InterestCount, rec.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.SiteID, err)
	}

	return nil
}

// PatchEnrichment sets the present enrichment fields of a stored record and
// leaves every other column untouched. It returns ErrNotFound when no record
// has that key.
func (db *DB) PatchEnrichment(ctx context.Context, siteID string, source auction.SourceType, e auction.Enrichment) error {
	return patchEnrichment(ctx, db.pool, siteID, source, e)
}

func (db *DB) PatchEnrichmentTx(ctx context.Context, tx pgx.Tx, siteID string, source auction.SourceType, e auction.Enrichment) error {
	return patchEnrichment(ctx, tx, siteID, source, e)
}

func patchEnrichment(ctx context.Context, q querier, siteID string, source auction.SourceType, e auction.Enrichment) error {
	query := `
		UPDATE auction_records SET
			thumbnail_url = COALESCE($3, thumbnail_url),
			building_info = COALESCE($4, building_info),
			note = COALESCE($5, note),
			view_count = COALESCE($6, view_count),
			enriched_at = NOW(),
			updated_at = NOW()
		WHERE site_id = $1 AND source_type = $2`

	tag, err := q.Exec(ctx, query, siteID, string(source), e.ThumbnailURL, e.BuildingInfo, e.Note, e.ViewCount)
	if err != nil {
		return fmt.Errorf("failed to patch record %s: %w", siteID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s/%s: %w", siteID, source, ErrNotFound)
	}

	return nil
}

func (db *DB) GetRecord(ctx context.Context, siteID string, source auction.SourceType) (*auction.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM auction_records
		WHERE site_id = $1 AND source_type = $2`

	rec, err := scanRecord(db.pool.QueryRow(ctx, query, siteID, string(source)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return rec, nil
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	Category auction.Category
	Source   auction.SourceType
	Limit    int
	Offset   int
}

func (db *DB) ListRecords(ctx context.Context, f RecordFilter) ([]*auction.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, string(f.Source))
		where = append(where, fmt.Sprintf("source_type = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + recordColumns + ` FROM auction_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, max(f.Offset, 0))
	query += fmt.Sprintf(" ORDER BY updated_at DESC, site_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*auction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes records posted more than days ago.
func (db *DB) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}

	tag, err := db.pool.Exec(ctx,
		`DELETE FROM auction_records WHERE date_posted < CURRENT_DATE - $1::int`, days)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*auction.Record, error) {
	var (
		rec                   auction.Record
		source, key, category string
		datePosted            *string
	)

	err := row.Scan(
		&rec.SiteID, &source, &key, &rec.CaseNumber, &rec.CourtCode, &rec.ItemSeq,
		&rec.Title, &rec.Address, &rec.Usage, &category, &rec.Department, &rec.Status, &rec.FailCount, &rec.Phone,
		&rec.DetailLink, &rec.MinimumPrice, &rec.AppraisedPrice,
		&datePosted, &rec.AuctionDate, &rec.ResultDate, &rec.InterestCount,
		&rec.ThumbnailURL, &rec.BuildingInfo, &rec.Note, &rec.ViewCount,
	)
	if err != nil {
		return nil, err
	}

	rec.SourceType = auction.SourceType(source)
	rec.Key = auction.CompositeKey(key)
	rec.Category = auction.Category(category)
	if datePosted != nil {
		rec.DatePosted = *datePosted
	}

	return &rec, nil
}
