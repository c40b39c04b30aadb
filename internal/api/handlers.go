package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/database"
	"github.com/maltedev/court-auction-scraper/internal/jobs"
)

type RunService interface {
	CreateRun(ctx context.Context, req jobs.CreateRunRequest) (*jobs.Run, error)
	GetRun(ctx context.Context, id string) (*jobs.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*jobs.Run, error)
}

type RecordStore interface {
	ListRecords(ctx context.Context, f database.RecordFilter) ([]*auction.Record, error)
	GetRecord(ctx context.Context, siteID string, source auction.SourceType) (*auction.Record, error)
}

type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Outbox health thresholds.
const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type Handlers struct {
	runs    RunService
	records RecordStore
	outbox  OutboxStats
	logger  *slog.Logger
}

func NewHandlers(runs RunService, records RecordStore, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		runs:    runs,
		records: records,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// CreateRunResponse represents the run creation response
type CreateRunResponse struct {
	RunID   string      `json:"run_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// CreateRun queues a collection run
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.runs.CreateRun(r.Context(), req)
	if err != nil {
		var verr *jobs.ValidationError
		if errors.As(err, &verr) {
			h.respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("failed to create run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateRunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Run queued",
	})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, jobs.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get run", "id", runID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intParam(w, r, "limit")
	if !ok {
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*jobs.Run{}
	}

	h.respondJSON(w, http.StatusOK, runs)
}

// ListAuctions lists stored records, newest first.
// Query: category, source, limit, offset.
func (h *Handlers) ListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.RecordFilter{}

	if c := q.Get("category"); c != "" {
		if !knownCategory(auction.Category(c)) {
			h.respondError(w, http.StatusBadRequest, "unknown category")
			return
		}
		f.Category = auction.Category(c)
	}
	if s := q.Get("source"); s != "" {
		source, err := auction.ParseSourceType(s)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Source = source
	}

	var ok bool
	if f.Limit, ok = h.intParam(w, r, "limit"); !ok {
		return
	}
	if f.Offset, ok = h.intParam(w, r, "offset"); !ok {
		return
	}

	records, err := h.records.ListRecords(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list records", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list auctions")
		return
	}
	if records == nil {
		records = []*auction.Record{}
	}

	h.respondJSON(w, http.StatusOK, records)
}

// GetAuction returns one record. The source query parameter defaults to
// the detailed search list.
func (h *Handlers) GetAuction(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	source, err := auction.ParseSourceType(r.URL.Query().Get("source"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.records.GetRecord(r.Context(), siteID, source)
	if errors.Is(err, database.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "auction not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get record", "site_id", siteID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get auction")
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// Health reports outbox backlog. A large dead letter count marks the
// service unavailable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.outbox.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to count outbox events", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"message": "database unavailable",
		})
		return
	}

	pending := counts[database.OutboxStatusPending] + counts[database.OutboxStatusFailed]
	deadLetter := counts[database.OutboxStatusDeadLetter]

	health := map[string]any{
		"status": "ok",
		"outbox": map[string]any{
			"pending":     pending,
			"dead_letter": deadLetter,
		},
	}

	status := http.StatusOK
	if pending > pendingWarnThreshold {
		health["status"] = "warning"
		health["message"] = "High number of pending outbox events"
	}
	if deadLetter > deadLetterFailThreshold {
		health["status"] = "error"
		health["message"] = "High number of dead letter events"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

func knownCategory(c auction.Category) bool {
	switch c {
	case auction.CategoryFactory, auction.CategoryApartment, auction.CategoryVilla,
		auction.CategoryOfficetel, auction.CategoryHouse, auction.CategoryCommercial,
		auction.CategoryRealEstate:
		return true
	}
	return false
}

// intParam reads an optional non-negative integer query parameter. On a bad
// value it writes the error response and returns false.
func (h *Handlers) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
