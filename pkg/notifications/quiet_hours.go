package notifications

import (
	"fmt"
	"time"
)

// QuietHours is a daily [Start, End) window in the user's timezone during
// which non-critical notifications are held back. Start after End means the
// window wraps past midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"` // HH:MM
	End      string `json:"end"`   // HH:MM
	Timezone string `json:"timezone"`
}

// Validate checks the clock values and the timezone of an enabled window.
func (q QuietHours) Validate() error {
	if !q.Enabled {
		return nil
	}
	if _, err := parseClock(q.Start); err != nil {
		return err
	}
	if _, err := parseClock(q.End); err != nil {
		return err
	}
	if q.Timezone != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimezone, q.Timezone)
		}
	}
	return nil
}

// Contains reports whether now falls inside the window.
// A window whose start equals its end is empty.
func (q QuietHours) Contains(now time.Time) bool {
	start, end, ok := q.bounds()
	if !ok {
		return false
	}

	local := now.In(q.location())
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// NextEnd returns the first moment strictly after now at which the window closes.
func (q QuietHours) NextEnd(now time.Time) time.Time {
	_, end, ok := q.bounds()
	if !ok {
		return now
	}

	loc := q.location()
	local := now.In(loc)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !boundary.After(local) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary.UTC()
}

func (q QuietHours) bounds() (start, end int, ok bool) {
	if !q.Enabled {
		return 0, 0, false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = parseClock(q.End)
	if err != nil || start == end {
		return 0, 0, false
	}
	return start, end, true
}

// location resolves the timezone, falling back to UTC for unknown names.
func (q QuietHours) location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
