package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/astromitra/astromitra/services/booking-service/internal/clock"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
	"github.com/astromitra/astromitra/services/booking-service/internal/outbox"
	"github.com/astromitra/astromitra/services/booking-service/internal/storage"
)

// ScheduleHandler owns astrologer availability windows: creation, partial
// update, deletion and listing, with wall-clock validity and duplicate-tuple
// checks on every write.
type ScheduleHandler struct {
	repo       *storage.ScheduleRepository
	outboxRepo *outbox.Repository
	clk        *clock.Clock
	logger     *slog.Logger
}

func NewScheduleHandler(repo *storage.ScheduleRepository, outboxRepo *outbox.Repository, clk *clock.Clock, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{repo: repo, outboxRepo: outboxRepo, clk: clk, logger: logger}
}

type createScheduleRequest struct {
	AstrologerID string `json:"astrologer_id"`
	PackageID    string `json:"package_id"`
	PackageType  string `json:"package_type"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsAvailable  *bool  `json:"is_available"`
}

type scheduleItem struct {
	ID           string `json:"id"`
	AstrologerID string `json:"astrologer_id"`
	PackageID    string `json:"package_id"`
	PackageType  string `json:"package_type"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsAvailable  bool   `json:"is_available"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func (h *ScheduleHandler) item(s model.Schedule) scheduleItem {
	return scheduleItem{
		ID:           s.ID,
		AstrologerID: s.AstrologerID,
		PackageID:    s.PackageID,
		PackageType:  s.PackageType,
		Date:         s.Date.In(h.clk.Location()).Format("2006-01-02"),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		IsAvailable:  s.IsAvailable,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// validateWindow parses and orders a wall-clock pair, normalizing both to the
// canonical zero-padded form.
func validateWindow(startRaw, endRaw string) (start, end clock.WallClock, msg string, ok bool) {
	start, err := clock.ParseWallClock(startRaw)
	if err != nil {
		return 0, 0, "invalid start_time: want HH:MM with hours 00-23", false
	}
	end, err = clock.ParseWallClock(endRaw)
	if err != nil {
		return 0, 0, "invalid end_time: want HH:MM with hours 00-23", false
	}
	if !end.After(start) {
		return 0, 0, "end_time must be after start_time", false
	}
	return start, end, "", true
}

func validPackageType(t string) bool {
	return t == model.PackageTypeService || t == model.PackageTypeMarriage
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AstrologerID = strings.TrimSpace(req.AstrologerID)
	req.PackageID = strings.TrimSpace(req.PackageID)
	req.PackageType = strings.TrimSpace(req.PackageType)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)

	if req.PackageType == "" {
		req.PackageType = model.PackageTypeService
	}
	if req.AstrologerID == "" || req.PackageID == "" || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		http.Error(w, "astrologer_id, package_id, date, start_time and end_time are required", http.StatusBadRequest)
		return
	}
	if !validPackageType(req.PackageType) {
		http.Error(w, "package_type must be service or marriage", http.StatusBadRequest)
		return
	}

	start, end, msg, ok := validateWindow(req.StartTime, req.EndTime)
	if !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	date, err := h.clk.ParseDate(req.Date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	isAvailable := true
	if req.IsAvailable != nil {
		isAvailable = *req.IsAvailable
	}

	ctx := r.Context()
	exists, err := h.repo.ExistsTuple(ctx, req.AstrologerID, req.PackageID, req.PackageType, date, start.String(), end.String(), "")
	if err != nil {
		http.Error(w, "failed to check schedule", http.StatusInternalServerError)
		return
	}
	if exists {
		http.Error(w, "schedule already exists for this window", http.StatusConflict)
		return
	}

	sched := &model.Schedule{
		AstrologerID: req.AstrologerID,
		PackageID:    req.PackageID,
		PackageType:  req.PackageType,
		Date:         date,
		StartTime:    start.String(),
		EndTime:      end.String(),
		IsAvailable:  isAvailable,
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, sched)
	if err != nil {
		if storage.IsConflict(err) {
			// Lost the race after the pre-check; same answer either way.
			http.Error(w, "schedule already exists for this window", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create schedule", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"schedule_id":   id,
		"astrologer_id": sched.AstrologerID,
		"package_id":    sched.PackageID,
		"package_type":  sched.PackageType,
		"date":          req.Date,
		"start_time":    sched.StartTime,
		"end_time":      sched.EndTime,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "schedule",
		AggregateID:   id,
		EventType:     outbox.EventScheduleOpened,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	created, err := h.repo.GetByID(ctx, id)
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.item(created))
}

type updateScheduleRequest struct {
	ID           string `json:"id"`
	AstrologerID string `json:"astrologer_id"`
	PackageID    string `json:"package_id"`
	PackageType  string `json:"package_type"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsAvailable  *bool  `json:"is_available"`
}

// Update applies a partial update: empty fields keep their stored values.
// All validation (format, ordering, duplicate tuple) runs against the merged
// record before anything is written.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	stored, err := h.repo.GetByID(ctx, req.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	merged := stored
	if v := strings.TrimSpace(req.AstrologerID); v != "" {
		merged.AstrologerID = v
	}
	if v := strings.TrimSpace(req.PackageID); v != "" {
		merged.PackageID = v
	}
	if v := strings.TrimSpace(req.PackageType); v != "" {
		if !validPackageType(v) {
			http.Error(w, "package_type must be service or marriage", http.StatusBadRequest)
			return
		}
		merged.PackageType = v
	}
	if v := strings.TrimSpace(req.Date); v != "" {
		date, err := h.clk.ParseDate(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		merged.Date = date
	}
	if v := strings.TrimSpace(req.StartTime); v != "" {
		merged.StartTime = v
	}
	if v := strings.TrimSpace(req.EndTime); v != "" {
		merged.EndTime = v
	}
	if req.IsAvailable != nil {
		merged.IsAvailable = *req.IsAvailable
	}

	start, end, msg, ok := validateWindow(merged.StartTime, merged.EndTime)
	if !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	merged.StartTime = start.String()
	merged.EndTime = end.String()

	exists, err := h.repo.ExistsTuple(ctx, merged.AstrologerID, merged.PackageID, merged.PackageType, merged.Date, merged.StartTime, merged.EndTime, merged.ID)
	if err != nil {
		http.Error(w, "failed to check schedule", http.StatusInternalServerError)
		return
	}
	if exists {
		http.Error(w, "schedule already exists for this window", http.StatusConflict)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.Update(ctx, tx, merged); err != nil {
		switch {
		case storage.IsNotFound(err):
			http.Error(w, "schedule not found", http.StatusNotFound)
		case storage.IsConflict(err):
			http.Error(w, "schedule already exists for this window", http.StatusConflict)
		default:
			http.Error(w, "failed to update schedule", http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	updated, err := h.repo.GetByID(ctx, merged.ID)
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.item(updated))
}

type deleteScheduleRequest struct {
	ID string `json:"id"`
}

// Delete removes the window unconditionally. Booking requests referencing it
// are left in place; request reads answer not-found for the dangling
// schedule.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), req.ID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete schedule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	sched, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.item(sched))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := storage.ScheduleFilter{
		AstrologerID: strings.TrimSpace(q.Get("astrologer_id")),
		PackageID:    strings.TrimSpace(q.Get("package_id")),
		OnlyOpen:     q.Get("only_open") == "true",
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err := h.clk.ParseDate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Date = &date
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	schedules, meta, err := h.repo.List(r.Context(), filter, storage.NormalizePage(page, limit))
	if err != nil {
		http.Error(w, "failed to list schedules", http.StatusInternalServerError)
		return
	}

	items := make([]scheduleItem, 0, len(schedules))
	for _, s := range schedules {
		items = append(items, h.item(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": meta,
	})
}
