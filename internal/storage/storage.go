// Package storage keeps a JSON file copy of collected records.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

// Snapshot is the file layout written by RecordFile.
type Snapshot struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Count     int              `json:"count"`
	Records   []auction.Record `json:"records"`
}

// RecordFile is a file-backed record catalogue keyed like the database:
// (site_id, source_type). Every write rewrites the whole file atomically.
type RecordFile struct {
	mu       sync.RWMutex
	records  map[string]auction.Record
	filename string
	now      func() time.Time
}

func NewRecordFile(filename string) (*RecordFile, error) {
	rf := &RecordFile{
		records:  make(map[string]auction.Record),
		filename: filename,
		now:      time.Now,
	}

	if err := rf.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return rf, nil
}

func key(siteID string, source auction.SourceType) string {
	return string(source) + "|" + siteID
}

// Upsert replaces the basic fields of rec and keeps enrichment already on
// file.
func (rf *RecordFile) Upsert(ctx context.Context, rec auction.Record) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rec.SiteID == "" {
		return fmt.Errorf("site id is required")
	}

	k := key(rec.SiteID, rec.SourceType)
	if prev, ok := rf.records[k]; ok {
		rec.ThumbnailURL = prev.ThumbnailURL
		rec.BuildingInfo = prev.BuildingInfo
		rec.ViewCount = prev.ViewCount
		if rec.Note == nil {
			rec.Note = prev.Note
		}
	}
	rf.records[k] = rec

	return rf.save()
}

// Patch sets the non-nil fields of e on a stored record.
func (rf *RecordFile) Patch(ctx context.Context, siteID string, source auction.SourceType, e auction.Enrichment) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	k := key(siteID, source)
	rec, ok := rf.records[k]
	if !ok {
		return fmt.Errorf("record not found: %s", siteID)
	}
	rec.Apply(e)
	rf.records[k] = rec

	return rf.save()
}

// Stats counts records per category plus a "total" entry.
func (rf *RecordFile) Stats() map[string]int {
	rf.mu.RLock()
	defer rf.mu.RUnlock()

	stats := make(map[string]int)
	for _, rec := range rf.records {
		stats[string(rec.Category)]++
	}
	stats["total"] = len(rf.records)
	return stats
}

func (rf *RecordFile) sorted() []auction.Record {
	out := make([]auction.Record, 0, len(rf.records))
	for _, rec := range rf.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteID == out[j].SiteID {
			return out[i].SourceType < out[j].SourceType
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out
}

func (rf *RecordFile) save() error {
	records := rf.sorted()
	return WriteJSON(rf.filename, Snapshot{
		UpdatedAt: rf.now().UTC(),
		Count:     len(records),
		Records:   records,
	})
}

func (rf *RecordFile) Load() error {
	data, err := os.ReadFile(rf.filename)
	if err != nil {
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode %s: %w", rf.filename, err)
	}

	for _, rec := range snap.Records {
		rf.records[key(rec.SiteID, rec.SourceType)] = rec
	}
	return nil
}

// WriteJSON writes v to filename through a temp file in the same directory.
func WriteJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, filename)
}
