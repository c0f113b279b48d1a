package clock

import (
	"testing"
	"time"
)

func TestParseWallClock(t *testing.T) {
	cases := []struct {
		in      string
		want    WallClock
		wantErr bool
	}{
		{"09:00", 9 * 60, false},
		{"9:00", 9 * 60, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", 0, true},
		{"29:30", 0, true},
		{"10:60", 0, true},
		{"10:5", 0, true},
		{"1000", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseWallClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseWallClock(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseWallClock(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseWallClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestWallClockString(t *testing.T) {
	w, err := ParseWallClock("9:05")
	if err != nil {
		t.Fatalf("ParseWallClock: %v", err)
	}
	if w.String() != "09:05" {
		t.Fatalf("expected canonical 09:05, got %s", w)
	}
	if w.Add(75).String() != "10:20" {
		t.Fatalf("expected 10:20 after +75m, got %s", w.Add(75))
	}
}

func TestMidnightUsesConfiguredZone(t *testing.T) {
	c, err := New("Asia/Kolkata")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 2026-03-10T20:00Z is already 2026-03-11 in Kolkata (+05:30).
	utc := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	got := c.Midnight(utc)
	if got.Day() != 11 || got.Hour() != 0 || got.Minute() != 0 {
		t.Fatalf("expected Kolkata midnight on the 11th, got %s", got)
	}
	if got.Location() != c.Location() {
		t.Fatal("midnight should stay in the configured zone")
	}
}

func TestParseDate(t *testing.T) {
	c, err := New("Asia/Kolkata")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, err := c.ParseDate("2026-09-01")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !d.Equal(c.Midnight(d)) {
		t.Fatal("parsed date should already be at midnight")
	}
	if _, err := c.ParseDate("01-09-2026"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}
