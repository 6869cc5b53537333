package policy

import (
	"fmt"
	"slices"
	"time"
)

// Parsed form of a Schedule, ready for evaluation.
type Window struct {
	// minutes since midnight
	Start    int
	End      int
	Days     []time.Weekday
	Location *time.Location
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule time %q (expected HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s *Schedule) Window() (*Window, error) {
	w := Window{Start: 0, End: 24*60 - 1, Location: time.UTC}
	var err error
	if s.StartTime != "" {
		if w.Start, err = parseClock(s.StartTime); err != nil {
			return nil, err
		}
	}
	if s.EndTime != "" {
		if w.End, err = parseClock(s.EndTime); err != nil {
			return nil, err
		}
	}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule timezone %q: %w", s.Timezone, err)
		}
		w.Location = loc
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid schedule day of week: %d", d)
		}
		w.Days = append(w.Days, time.Weekday(d))
	}
	return &w, nil
}

// Reports whether the instant falls inside the window (inclusive on both ends, at minute resolution).
func (w *Window) Contains(now time.Time) bool {
	local := now.In(w.Location)
	if len(w.Days) > 0 && !slices.Contains(w.Days, local.Weekday()) {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	if w.Start <= w.End {
		return m >= w.Start && m <= w.End
	}
	// overnight window, eg 22:00-06:00
	return m >= w.Start || m <= w.End
}
