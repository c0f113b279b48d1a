// Package availability derives bookable consultation slots from a schedule
// window and a package duration. Slots are never persisted; they are a pure
// function of the window, the duration and the currently booked slot set, so
// recomputing on every read is safe and idempotent.
package availability

import "github.com/astromitra/astromitra/services/booking-service/internal/clock"

// Slot is one bookable sub-interval of a schedule window.
type Slot struct {
	Start     clock.WallClock
	End       clock.WallClock
	Available bool
}

// Booked is an exact (start, end) pair already held by a booked request.
type Booked struct {
	Start clock.WallClock
	End   clock.WallClock
}

// Slots walks the window from start in steps of durationMinutes. A slot is
// unavailable when a booked pair matches it exactly. The last slot may run
// past the window end; it is emitted once and the walk stops, which is how
// windows that are not a multiple of the package length behave.
// Returns nil when durationMinutes <= 0 or start >= end.
func Slots(start, end clock.WallClock, durationMinutes int, booked []Booked) []Slot {
	if durationMinutes <= 0 || !start.Before(end) {
		return nil
	}

	var slots []Slot
	for cursor := start; cursor.Before(end); {
		slotEnd := cursor.Add(durationMinutes)
		slots = append(slots, Slot{
			Start:     cursor,
			End:       slotEnd,
			Available: !isBooked(cursor, slotEnd, booked),
		})
		if slotEnd.After(end) {
			break
		}
		cursor = slotEnd
	}
	return slots
}

// Find returns the slot exactly matching (start, end), or false.
func Find(slots []Slot, start, end clock.WallClock) (Slot, bool) {
	for _, s := range slots {
		if s.Start == start && s.End == end {
			return s, true
		}
	}
	return Slot{}, false
}

func isBooked(start, end clock.WallClock, booked []Booked) bool {
	for _, b := range booked {
		if b.Start == start && b.End == end {
			return true
		}
	}
	return false
}
