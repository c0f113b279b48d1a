package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/astromitra/astromitra/services/booking-service/internal/locks"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
	"github.com/astromitra/astromitra/services/booking-service/internal/outbox"
	"github.com/astromitra/astromitra/services/booking-service/internal/payments"
	"github.com/astromitra/astromitra/services/booking-service/internal/storage"
)

func testBookingHandler() *BookingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Collaborators stay nil: these tests only exercise paths that answer
	// before touching storage or the lock.
	return NewBookingHandler(nil, nil, nil, nil, nil, nil, logger)
}

func TestCreateRequestRejectsBadBody(t *testing.T) {
	h := testBookingHandler()
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing fields", `{"user_id":"user-1"}`},
		{"bad communication type", `{"user_id":"user-1","astrologer_id":"ast-1","schedule_id":"sch-1","package_id":"pkg-1","transaction_id":"pi_1","communication_type":"fax"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(tc.body))
			rw := httptest.NewRecorder()
			h.CreateRequest(rw, req)
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
			}
		})
	}
}

func TestCreateRequestRejectsBadMethod(t *testing.T) {
	h := testBookingHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	rw := httptest.NewRecorder()
	h.CreateRequest(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

func TestSlotsRequiresRequestID(t *testing.T) {
	h := testBookingHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/slots", nil)
	req.Header.Set("X-Astrologer-Id", "ast-1")
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestSlotsRequiresAstrologerScope(t *testing.T) {
	h := testBookingHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/slots?request_id=req-1", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "X-Astrologer-Id") {
		t.Fatalf("expected scope error, got %q", rw.Body.String())
	}
}

func TestSelectSlotRejectsBadBody(t *testing.T) {
	h := testBookingHandler()
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing request id", `{"start_time":"09:00","end_time":"09:20"}`},
		{"missing times", `{"request_id":"req-1"}`},
		{"bad start time", `{"request_id":"req-1","start_time":"24:00","end_time":"09:20"}`},
		{"bad end time", `{"request_id":"req-1","start_time":"09:00","end_time":"9:5"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/select-slot", strings.NewReader(tc.body))
			req.Header.Set("X-Astrologer-Id", "ast-1")
			rw := httptest.NewRecorder()
			h.SelectSlot(rw, req)
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
			}
		})
	}
}

func TestResetSlotRejectsOneSidedPair(t *testing.T) {
	h := testBookingHandler()
	cases := []struct {
		name string
		body string
	}{
		{"only new start", `{"request_id":"req-1","new_start_time":"09:00"}`},
		{"only new end", `{"request_id":"req-1","new_end_time":"09:20"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/reset-slot", strings.NewReader(tc.body))
			req.Header.Set("X-Astrologer-Id", "ast-1")
			rw := httptest.NewRecorder()
			h.ResetSlot(rw, req)
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
			}
			if !strings.Contains(rw.Body.String(), "together") {
				t.Fatalf("expected pair error, got %q", rw.Body.String())
			}
		})
	}
}

func TestResetSlotRejectsBadNewTimes(t *testing.T) {
	h := testBookingHandler()
	body := `{"request_id":"req-1","new_start_time":"10:65","new_end_time":"11:00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/reset-slot", strings.NewReader(body))
	req.Header.Set("X-Astrologer-Id", "ast-1")
	rw := httptest.NewRecorder()
	h.ResetSlot(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestResetSlotRequiresRequestID(t *testing.T) {
	h := testBookingHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/reset-slot", strings.NewReader(`{}`))
	req.Header.Set("X-Astrologer-Id", "ast-1")
	rw := httptest.NewRecorder()
	h.ResetSlot(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

// In-memory stores driving the status gates and slot transitions.

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeRequests struct {
	byID map[string]*model.BookingRequest
}

func (f *fakeRequests) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeRequests) Create(_ context.Context, _ pgx.Tx, req *model.BookingRequest) (string, error) {
	id := "req-" + strconv.Itoa(len(f.byID)+1)
	cp := *req
	cp.ID = id
	cp.Status = model.RequestStatusPending
	f.byID[id] = &cp
	return id, nil
}

func (f *fakeRequests) GetForAstrologer(_ context.Context, id, astrologerID string) (model.BookingRequest, error) {
	req, ok := f.byID[id]
	if !ok || req.AstrologerID != astrologerID {
		return model.BookingRequest{}, pgx.ErrNoRows
	}
	return *req, nil
}

func (f *fakeRequests) ListBookedSlots(_ context.Context, scheduleID, excludeRequestID string) ([]storage.BookedSlot, error) {
	var slots []storage.BookedSlot
	for _, req := range f.byID {
		if req.ScheduleID != scheduleID || req.Status != model.RequestStatusBooked || req.StartTime == "" {
			continue
		}
		if excludeRequestID != "" && req.ID == excludeRequestID {
			continue
		}
		slots = append(slots, storage.BookedSlot{StartTime: req.StartTime, EndTime: req.EndTime})
	}
	return slots, nil
}

func (f *fakeRequests) MarkBooked(_ context.Context, _ pgx.Tx, id, startTime, endTime string) error {
	req, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.StartTime = startTime
	req.EndTime = endTime
	req.Status = model.RequestStatusBooked
	return nil
}

func (f *fakeRequests) MarkPending(_ context.Context, _ pgx.Tx, id string) error {
	req, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.StartTime = ""
	req.EndTime = ""
	req.Status = model.RequestStatusPending
	return nil
}

func (f *fakeRequests) List(_ context.Context, _ storage.RequestFilter, page storage.Page) ([]model.BookingRequest, storage.PageMeta, error) {
	var out []model.BookingRequest
	for _, req := range f.byID {
		out = append(out, *req)
	}
	return out, storage.NewPageMeta(page, len(out)), nil
}

type fakeSchedules struct {
	byID map[string]model.Schedule
}

func (f fakeSchedules) GetByID(_ context.Context, id string) (model.Schedule, error) {
	s, ok := f.byID[id]
	if !ok {
		return model.Schedule{}, pgx.ErrNoRows
	}
	return s, nil
}

type fakePackages struct {
	byID map[string]model.Package
}

func (f fakePackages) GetByID(_ context.Context, id string) (model.Package, error) {
	p, ok := f.byID[id]
	if !ok {
		return model.Package{}, pgx.ErrNoRows
	}
	return p, nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

// newBookingFixture wires a handler over in-memory stores with one open
// schedule (09:00-10:00) and one active 20-minute package.
func newBookingFixture() (*BookingHandler, *fakeRequests, *fakeOutbox) {
	requests := &fakeRequests{byID: map[string]*model.BookingRequest{}}
	schedules := fakeSchedules{byID: map[string]model.Schedule{
		"sch-1": {
			ID:           "sch-1",
			AstrologerID: "ast-1",
			PackageID:    "pkg-1",
			PackageType:  model.PackageTypeService,
			StartTime:    "09:00",
			EndTime:      "10:00",
			IsAvailable:  true,
		},
	}}
	packages := fakePackages{byID: map[string]model.Package{
		"pkg-1": {ID: "pkg-1", Name: "Vedic consultation", DurationMinutes: 20, IsActive: true},
	}}
	ob := &fakeOutbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewBookingHandler(requests, schedules, packages, ob, payments.NewVerifier(""), locks.NewKeyed(), logger)
	return h, requests, ob
}

func seedRequest(f *fakeRequests, id, status, startTime, endTime string) {
	f.byID[id] = &model.BookingRequest{
		ID:                id,
		UserID:            "user-1",
		AstrologerID:      "ast-1",
		ScheduleID:        "sch-1",
		PackageID:         "pkg-1",
		TransactionID:     "pi_" + id,
		CommunicationType: model.CommunicationChat,
		StartTime:         startTime,
		EndTime:           endTime,
		Status:            status,
	}
}

func postScoped(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Astrologer-Id", "ast-1")
	rw := httptest.NewRecorder()
	h(rw, req)
	return rw
}

func TestSelectSlotRejectsBookedRequest(t *testing.T) {
	h, requests, _ := newBookingFixture()
	seedRequest(requests, "req-1", model.RequestStatusBooked, "09:00", "09:20")

	rw := postScoped(h.SelectSlot, "/api/v1/requests/select-slot",
		`{"request_id":"req-1","start_time":"09:20","end_time":"09:40"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	if !strings.Contains(rw.Body.String(), "only pending requests") {
		t.Fatalf("expected pending-only error, got %q", rw.Body.String())
	}
	if got := requests.byID["req-1"]; got.Status != model.RequestStatusBooked || got.StartTime != "09:00" {
		t.Fatalf("request mutated by rejected select: %+v", got)
	}
}

func TestResetSlotRejectsPendingRequest(t *testing.T) {
	h, requests, _ := newBookingFixture()
	seedRequest(requests, "req-1", model.RequestStatusPending, "", "")

	rw := postScoped(h.ResetSlot, "/api/v1/requests/reset-slot", `{"request_id":"req-1"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	if !strings.Contains(rw.Body.String(), "only booked requests") {
		t.Fatalf("expected booked-only error, got %q", rw.Body.String())
	}
}

// Selecting a slot makes it unavailable to others; resetting frees it again.
func TestSelectResetSelectRoundTrip(t *testing.T) {
	h, requests, ob := newBookingFixture()
	seedRequest(requests, "req-1", model.RequestStatusPending, "", "")
	seedRequest(requests, "req-2", model.RequestStatusPending, "", "")

	rw := postScoped(h.SelectSlot, "/api/v1/requests/select-slot",
		`{"request_id":"req-1","start_time":"09:00","end_time":"09:20"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("first select: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if got := requests.byID["req-1"]; got.Status != model.RequestStatusBooked || got.StartTime != "09:00" || got.EndTime != "09:20" {
		t.Fatalf("after select: %+v", got)
	}

	rw = postScoped(h.SelectSlot, "/api/v1/requests/select-slot",
		`{"request_id":"req-2","start_time":"09:00","end_time":"09:20"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("taken slot: expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	if !strings.Contains(rw.Body.String(), "slot not available") {
		t.Fatalf("expected unavailable error, got %q", rw.Body.String())
	}

	rw = postScoped(h.ResetSlot, "/api/v1/requests/reset-slot", `{"request_id":"req-1"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if got := requests.byID["req-1"]; got.Status != model.RequestStatusPending || got.StartTime != "" || got.EndTime != "" {
		t.Fatalf("after reset: %+v", got)
	}

	rw = postScoped(h.SelectSlot, "/api/v1/requests/select-slot",
		`{"request_id":"req-2","start_time":"09:00","end_time":"09:20"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("re-select freed slot: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if got := requests.byID["req-2"]; got.Status != model.RequestStatusBooked {
		t.Fatalf("after re-select: %+v", got)
	}

	wantEvents := []string{outbox.EventSlotSelected, outbox.EventSlotReset, outbox.EventSlotSelected}
	if len(ob.events) != len(wantEvents) {
		t.Fatalf("expected %d outbox events, got %d", len(wantEvents), len(ob.events))
	}
	for i, want := range wantEvents {
		if ob.events[i].EventType != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, ob.events[i].EventType)
		}
	}
}

func TestSlotsIgnoresUnparseableBookedTimes(t *testing.T) {
	h, requests, _ := newBookingFixture()
	seedRequest(requests, "req-1", model.RequestStatusPending, "", "")
	seedRequest(requests, "req-bad", model.RequestStatusBooked, "9:99", "10:19")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/slots?request_id=req-1", nil)
	req.Header.Set("X-Astrologer-Id", "ast-1")
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp struct {
		Slots []struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			Available bool   `json:"available"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(resp.Slots))
	}
	for _, s := range resp.Slots {
		if !s.Available {
			t.Fatalf("slot %s-%s unexpectedly unavailable", s.StartTime, s.EndTime)
		}
	}
}
