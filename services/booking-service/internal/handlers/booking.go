package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/astromitra/astromitra/services/booking-service/internal/availability"
	"github.com/astromitra/astromitra/services/booking-service/internal/clock"
	"github.com/astromitra/astromitra/services/booking-service/internal/locks"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
	"github.com/astromitra/astromitra/services/booking-service/internal/outbox"
	"github.com/astromitra/astromitra/services/booking-service/internal/storage"
)

// requestStore is the booking-request storage surface the handler needs,
// satisfied by storage.RequestRepository.
type requestStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, req *model.BookingRequest) (string, error)
	GetForAstrologer(ctx context.Context, id, astrologerID string) (model.BookingRequest, error)
	ListBookedSlots(ctx context.Context, scheduleID, excludeRequestID string) ([]storage.BookedSlot, error)
	MarkBooked(ctx context.Context, tx pgx.Tx, id, startTime, endTime string) error
	MarkPending(ctx context.Context, tx pgx.Tx, id string) error
	List(ctx context.Context, f storage.RequestFilter, page storage.Page) ([]model.BookingRequest, storage.PageMeta, error)
}

type scheduleGetter interface {
	GetByID(ctx context.Context, id string) (model.Schedule, error)
}

type packageGetter interface {
	GetByID(ctx context.Context, id string) (model.Package, error)
}

type outboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type transactionVerifier interface {
	VerifyTransaction(ctx context.Context, transactionID string) error
}

// BookingHandler mediates booking requests against schedule windows: request
// creation, slot derivation, slot selection and reset. Select and reset run
// inside a per-schedule lock; the booked-slot unique index backs the lock up.
type BookingHandler struct {
	requests   requestStore
	schedules  scheduleGetter
	packages   packageGetter
	outboxRepo outboxInserter
	verifier   transactionVerifier
	locker     locks.Locker
	logger     *slog.Logger
}

func NewBookingHandler(
	requests requestStore,
	schedules scheduleGetter,
	packages packageGetter,
	outboxRepo outboxInserter,
	verifier transactionVerifier,
	locker locks.Locker,
	logger *slog.Logger,
) *BookingHandler {
	return &BookingHandler{
		requests:   requests,
		schedules:  schedules,
		packages:   packages,
		outboxRepo: outboxRepo,
		verifier:   verifier,
		locker:     locker,
		logger:     logger,
	}
}

type requestItem struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	AstrologerID      string `json:"astrologer_id"`
	ScheduleID        string `json:"schedule_id"`
	PackageID         string `json:"package_id"`
	TransactionID     string `json:"transaction_id"`
	CommunicationType string `json:"communication_type"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func requestToItem(req model.BookingRequest) requestItem {
	return requestItem{
		ID:                req.ID,
		UserID:            req.UserID,
		AstrologerID:      req.AstrologerID,
		ScheduleID:        req.ScheduleID,
		PackageID:         req.PackageID,
		TransactionID:     req.TransactionID,
		CommunicationType: req.CommunicationType,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Status:            req.Status,
		CreatedAt:         req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

func validCommunicationType(t string) bool {
	switch t {
	case model.CommunicationChat, model.CommunicationCall, model.CommunicationVideo:
		return true
	}
	return false
}

type createRequestRequest struct {
	UserID            string `json:"user_id"`
	AstrologerID      string `json:"astrologer_id"`
	ScheduleID        string `json:"schedule_id"`
	PackageID         string `json:"package_id"`
	TransactionID     string `json:"transaction_id"`
	CommunicationType string `json:"communication_type"`
}

func (h *BookingHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.AstrologerID = strings.TrimSpace(req.AstrologerID)
	req.ScheduleID = strings.TrimSpace(req.ScheduleID)
	req.PackageID = strings.TrimSpace(req.PackageID)
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.CommunicationType = strings.TrimSpace(req.CommunicationType)

	if req.UserID == "" || req.AstrologerID == "" || req.ScheduleID == "" || req.PackageID == "" || req.TransactionID == "" {
		http.Error(w, "user_id, astrologer_id, schedule_id, package_id and transaction_id are required", http.StatusBadRequest)
		return
	}
	if req.CommunicationType == "" {
		req.CommunicationType = model.CommunicationChat
	}
	if !validCommunicationType(req.CommunicationType) {
		http.Error(w, "communication_type must be chat, call or video", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.schedules.GetByID(ctx, req.ScheduleID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	pkg, err := h.packages.GetByID(ctx, req.PackageID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "package not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load package", http.StatusInternalServerError)
		return
	}
	if !pkg.IsActive {
		http.Error(w, "package is not active", http.StatusBadRequest)
		return
	}

	if err := h.verifier.VerifyTransaction(ctx, req.TransactionID); err != nil {
		h.logger.Warn("transaction verification failed", "transaction_id", req.TransactionID, "err", err)
		http.Error(w, "transaction could not be verified", http.StatusBadRequest)
		return
	}

	tx, err := h.requests.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.requests.Create(ctx, tx, &model.BookingRequest{
		UserID:            req.UserID,
		AstrologerID:      req.AstrologerID,
		ScheduleID:        req.ScheduleID,
		PackageID:         req.PackageID,
		TransactionID:     req.TransactionID,
		CommunicationType: req.CommunicationType,
	})
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "booking request already exists", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create booking request", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"request_id":     id,
		"user_id":        req.UserID,
		"astrologer_id":  req.AstrologerID,
		"schedule_id":    req.ScheduleID,
		"package_id":     req.PackageID,
		"transaction_id": req.TransactionID,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_request",
		AggregateID:   id,
		EventType:     outbox.EventRequestCreated,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"request_id": id})
}

// slotContext is everything needed to derive the slot sequence for a request.
type slotContext struct {
	request  model.BookingRequest
	schedule model.Schedule
	pkg      model.Package
}

// loadSlotContext resolves a request within the astrologer scope plus its
// schedule and package. Scope mismatches and dangling references all answer
// as not found; an explicitly closed schedule is a conflict.
func (h *BookingHandler) loadSlotContext(w http.ResponseWriter, r *http.Request, requestID string, requireOpen bool) (slotContext, bool) {
	scope := strings.TrimSpace(astrologerScope(r))
	if scope == "" {
		http.Error(w, "missing X-Astrologer-Id", http.StatusBadRequest)
		return slotContext{}, false
	}

	ctx := r.Context()
	req, err := h.requests.GetForAstrologer(ctx, requestID, scope)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking request not found", http.StatusNotFound)
			return slotContext{}, false
		}
		http.Error(w, "failed to load booking request", http.StatusInternalServerError)
		return slotContext{}, false
	}

	sched, err := h.schedules.GetByID(ctx, req.ScheduleID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "schedule not found", http.StatusNotFound)
			return slotContext{}, false
		}
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return slotContext{}, false
	}
	if requireOpen && !sched.IsAvailable {
		http.Error(w, "schedule is not open for booking", http.StatusConflict)
		return slotContext{}, false
	}

	pkg, err := h.packages.GetByID(ctx, req.PackageID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "package not found", http.StatusNotFound)
			return slotContext{}, false
		}
		http.Error(w, "failed to load package", http.StatusInternalServerError)
		return slotContext{}, false
	}

	return slotContext{request: req, schedule: sched, pkg: pkg}, true
}

// deriveSlots recomputes the slot sequence for a schedule and duration.
// excludeRequestID leaves one request's own booking out of the busy set.
func (h *BookingHandler) deriveSlots(w http.ResponseWriter, r *http.Request, sc slotContext, excludeRequestID string) ([]availability.Slot, bool) {
	start, err := clock.ParseWallClock(sc.schedule.StartTime)
	if err != nil {
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return nil, false
	}
	end, err := clock.ParseWallClock(sc.schedule.EndTime)
	if err != nil {
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return nil, false
	}

	bookedRows, err := h.requests.ListBookedSlots(r.Context(), sc.schedule.ID, excludeRequestID)
	if err != nil {
		http.Error(w, "failed to load booked slots", http.StatusInternalServerError)
		return nil, false
	}
	booked := make([]availability.Booked, 0, len(bookedRows))
	for _, b := range bookedRows {
		bs, errStart := clock.ParseWallClock(b.StartTime)
		be, errEnd := clock.ParseWallClock(b.EndTime)
		if errStart != nil || errEnd != nil {
			// MarkBooked only writes canonical times, so this means a row
			// mutated outside the service.
			h.logger.Warn("ignoring booked slot with unparseable times",
				"schedule_id", sc.schedule.ID, "start_time", b.StartTime, "end_time", b.EndTime)
			continue
		}
		booked = append(booked, availability.Booked{Start: bs, End: be})
	}

	return availability.Slots(start, end, sc.pkg.DurationMinutes, booked), true
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if requestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}

	sc, ok := h.loadSlotContext(w, r, requestID, false)
	if !ok {
		return
	}
	slots, ok := h.deriveSlots(w, r, sc, "")
	if !ok {
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.String(),
			EndTime:   s.End.String(),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request": requestToItem(sc.request),
		"slots":   items,
	})
}

type selectSlotRequest struct {
	RequestID string `json:"request_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)

	if req.RequestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}
	if req.StartTime == "" || req.EndTime == "" {
		http.Error(w, "start_time and end_time are required", http.StatusBadRequest)
		return
	}
	start, err := clock.ParseWallClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time: want HH:MM with hours 00-23", http.StatusBadRequest)
		return
	}
	end, err := clock.ParseWallClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time: want HH:MM with hours 00-23", http.StatusBadRequest)
		return
	}

	sc, ok := h.loadSlotContext(w, r, req.RequestID, true)
	if !ok {
		return
	}
	if sc.request.Status != model.RequestStatusPending {
		http.Error(w, "only pending requests can select a slot", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	release, err := h.locker.Lock(ctx, sc.schedule.ID)
	if err != nil {
		http.Error(w, "schedule is busy, retry", http.StatusServiceUnavailable)
		return
	}
	defer release()

	slots, ok := h.deriveSlots(w, r, sc, "")
	if !ok {
		return
	}
	slot, found := availability.Find(slots, start, end)
	if !found || !slot.Available {
		http.Error(w, "slot not available or invalid", http.StatusBadRequest)
		return
	}

	if !h.commitSlotChange(w, r, sc, slot.Start.String(), slot.End.String(), outbox.EventSlotSelected, false) {
		return
	}

	updated, err := h.requests.GetForAstrologer(ctx, req.RequestID, sc.request.AstrologerID)
	if err != nil {
		http.Error(w, "failed to load booking request", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "slot booked",
		"request": requestToItem(updated),
	})
}

type resetSlotRequest struct {
	RequestID    string `json:"request_id"`
	NewStartTime string `json:"new_start_time"`
	NewEndTime   string `json:"new_end_time"`
}

// ResetSlot frees a booked request's slot. With a new pair supplied, the
// candidate slot is validated in full before anything is written, so a bad or
// taken slot leaves the request booked exactly as it was.
func (h *BookingHandler) ResetSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resetSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.NewStartTime = strings.TrimSpace(req.NewStartTime)
	req.NewEndTime = strings.TrimSpace(req.NewEndTime)

	if req.RequestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}
	reschedule := req.NewStartTime != "" || req.NewEndTime != ""
	if reschedule && (req.NewStartTime == "" || req.NewEndTime == "") {
		http.Error(w, "new_start_time and new_end_time must be supplied together", http.StatusBadRequest)
		return
	}

	var newStart, newEnd clock.WallClock
	if reschedule {
		var err error
		newStart, err = clock.ParseWallClock(req.NewStartTime)
		if err != nil {
			http.Error(w, "invalid new_start_time: want HH:MM with hours 00-23", http.StatusBadRequest)
			return
		}
		newEnd, err = clock.ParseWallClock(req.NewEndTime)
		if err != nil {
			http.Error(w, "invalid new_end_time: want HH:MM with hours 00-23", http.StatusBadRequest)
			return
		}
	}

	sc, ok := h.loadSlotContext(w, r, req.RequestID, reschedule)
	if !ok {
		return
	}
	if sc.request.Status != model.RequestStatusBooked {
		http.Error(w, "only booked requests can be reset", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	release, err := h.locker.Lock(ctx, sc.schedule.ID)
	if err != nil {
		http.Error(w, "schedule is busy, retry", http.StatusServiceUnavailable)
		return
	}
	defer release()

	message := "slot reset"
	if reschedule {
		// The request's own booking is excluded so it can keep or swap its
		// slot without colliding with itself.
		slots, ok := h.deriveSlots(w, r, sc, sc.request.ID)
		if !ok {
			return
		}
		slot, found := availability.Find(slots, newStart, newEnd)
		if !found || !slot.Available {
			http.Error(w, "slot not available or invalid", http.StatusBadRequest)
			return
		}
		if !h.commitSlotChange(w, r, sc, slot.Start.String(), slot.End.String(), outbox.EventSlotReset, true) {
			return
		}
		message = "slot rescheduled"
	} else {
		if !h.commitSlotChange(w, r, sc, "", "", outbox.EventSlotReset, false) {
			return
		}
	}

	updated, err := h.requests.GetForAstrologer(ctx, req.RequestID, sc.request.AstrologerID)
	if err != nil {
		http.Error(w, "failed to load booking request", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"request": requestToItem(updated),
	})
}

// commitSlotChange writes the slot transition and its outbox event in one
// transaction. Empty times mean a reset to pending; otherwise the request is
// marked booked on the given pair.
func (h *BookingHandler) commitSlotChange(w http.ResponseWriter, r *http.Request, sc slotContext, startTime, endTime, eventType string, rebooked bool) bool {
	ctx := r.Context()
	tx, err := h.requests.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return false
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if startTime == "" {
		err = h.requests.MarkPending(ctx, tx, sc.request.ID)
	} else {
		err = h.requests.MarkBooked(ctx, tx, sc.request.ID, startTime, endTime)
	}
	if err != nil {
		switch {
		case storage.IsConflict(err):
			http.Error(w, "slot already booked", http.StatusConflict)
		case storage.IsNotFound(err):
			http.Error(w, "booking request not found", http.StatusNotFound)
		default:
			http.Error(w, "failed to update booking request", http.StatusInternalServerError)
		}
		return false
	}

	payload, err := json.Marshal(map[string]any{
		"request_id":    sc.request.ID,
		"schedule_id":   sc.schedule.ID,
		"astrologer_id": sc.request.AstrologerID,
		"user_id":       sc.request.UserID,
		"start_time":    startTime,
		"end_time":      endTime,
		"rebooked":      rebooked,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return false
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking_request",
		AggregateID:   sc.request.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return false
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *BookingHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := storage.RequestFilter{
		AstrologerID: strings.TrimSpace(astrologerScope(r)),
		UserID:       strings.TrimSpace(q.Get("user_id")),
		ScheduleID:   strings.TrimSpace(q.Get("schedule_id")),
		Status:       strings.TrimSpace(q.Get("status")),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	requests, meta, err := h.requests.List(r.Context(), filter, storage.NormalizePage(page, limit))
	if err != nil {
		http.Error(w, "failed to list booking requests", http.StatusInternalServerError)
		return
	}

	items := make([]requestItem, 0, len(requests))
	for _, req := range requests {
		items = append(items, requestToItem(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": meta,
	})
}
