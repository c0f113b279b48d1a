package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/astromitra/astromitra/services/booking-service/internal/clock"
)

func testScheduleHandler(t *testing.T) *ScheduleHandler {
	t.Helper()
	clk, err := clock.New("Asia/Kolkata")
	if err != nil {
		t.Fatalf("clock.New failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Repos stay nil: these tests only exercise paths that answer before
	// touching storage.
	return NewScheduleHandler(nil, nil, clk, logger)
}

func TestValidateWindow(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		wantOK     bool
	}{
		{"valid", "09:00", "10:00", true},
		{"one-digit hour", "9:00", "10:00", true},
		{"end equals start", "09:00", "09:00", false},
		{"end before start", "10:00", "09:00", false},
		{"hour out of range", "24:00", "25:00", false},
		{"minute out of range", "09:60", "10:00", false},
		{"garbage", "soon", "later", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, msg, ok := validateWindow(tc.start, tc.end)
			if ok != tc.wantOK {
				t.Fatalf("validateWindow(%q, %q) ok = %v, want %v (msg %q)", tc.start, tc.end, ok, tc.wantOK, msg)
			}
			if ok && !end.After(start) {
				t.Fatalf("expected end %v after start %v", end, start)
			}
		})
	}
}

func TestCreateScheduleRejectsBadMethod(t *testing.T) {
	h := testScheduleHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules", nil)
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

func TestCreateScheduleRejectsBadBody(t *testing.T) {
	h := testScheduleHandler(t)
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing fields", `{"astrologer_id":"ast-1"}`},
		{"bad start time", `{"astrologer_id":"ast-1","package_id":"pkg-1","date":"2026-09-01","start_time":"25:00","end_time":"10:00"}`},
		{"end before start", `{"astrologer_id":"ast-1","package_id":"pkg-1","date":"2026-09-01","start_time":"10:00","end_time":"09:00"}`},
		{"bad package type", `{"astrologer_id":"ast-1","package_id":"pkg-1","package_type":"tarot","date":"2026-09-01","start_time":"09:00","end_time":"10:00"}`},
		{"bad date", `{"astrologer_id":"ast-1","package_id":"pkg-1","date":"01-09-2026","start_time":"09:00","end_time":"10:00"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(tc.body))
			rw := httptest.NewRecorder()
			h.Create(rw, req)
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
			}
		})
	}
}

func TestUpdateScheduleRequiresID(t *testing.T) {
	h := testScheduleHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules/update", strings.NewReader(`{"start_time":"09:00"}`))
	rw := httptest.NewRecorder()
	h.Update(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestDeleteScheduleRequiresID(t *testing.T) {
	h := testScheduleHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules/delete", strings.NewReader(`{}`))
	rw := httptest.NewRecorder()
	h.Delete(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestGetScheduleRequiresID(t *testing.T) {
	h := testScheduleHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules/get", nil)
	rw := httptest.NewRecorder()
	h.Get(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestListScheduleRejectsBadDate(t *testing.T) {
	h := testScheduleHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedules?date=not-a-date", nil)
	rw := httptest.NewRecorder()
	h.List(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}
