// Package clock fixes the platform's canonical time zone and the wall-clock
// "HH:MM" format used for astrologer availability windows. All date and
// wall-clock interpretation goes through a Clock so no comparison depends on
// the process-local zone.
package clock

import (
	"fmt"
	"regexp"
	"time"
)

// WallClock is a minute-of-day value. Arithmetic past midnight is allowed
// (e.g. a slot ending at 24:15) so trailing partial slots stay representable.
type WallClock int

var wallClockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseWallClock accepts "HH:MM" with an optional leading zero on the hour
// ("9:30" and "09:30" are the same value). Hours run 00-23.
func ParseWallClock(s string) (WallClock, error) {
	m := wallClockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM with hours 00-23", s)
	}
	var hh, mm int
	_, _ = fmt.Sscanf(m[1], "%d", &hh)
	_, _ = fmt.Sscanf(m[2], "%d", &mm)
	return WallClock(hh*60 + mm), nil
}

// String renders the canonical zero-padded form, e.g. "09:05".
func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", int(w)/60, int(w)%60)
}

func (w WallClock) Add(minutes int) WallClock {
	return w + WallClock(minutes)
}

func (w WallClock) Before(other WallClock) bool {
	return w < other
}

func (w WallClock) After(other WallClock) bool {
	return w > other
}

// Clock carries the configured zone for date interpretation.
type Clock struct {
	loc *time.Location
}

func New(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", tz, err)
	}
	return &Clock{loc: loc}, nil
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// ParseDate parses "YYYY-MM-DD" as midnight in the configured zone.
func (c *Clock) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// Midnight truncates t to the start of its calendar day in the configured
// zone. Schedule uniqueness compares dates through this.
func (c *Clock) Midnight(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
