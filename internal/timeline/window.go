package timeline

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// Window is a validity range of whole days. A bounded window is effective
// from start through end inclusive; an unbounded one never ends.
// The zero value is not a valid window; build one with Bounded or Unbounded.
type Window struct {
	start   time.Time
	end     time.Time
	bounded bool
}

// Bounded returns the window [start, end].
func Bounded(start, end time.Time) Window {
	return Window{start: Day(start), end: Day(end), bounded: true}
}

// Unbounded returns the window [start, +inf).
func Unbounded(start time.Time) Window {
	return Window{start: Day(start)}
}

// FromNullable converts the storage representation (nil end = open ended).
func FromNullable(start time.Time, end *time.Time) Window {
	if end == nil {
		return Unbounded(start)
	}
	return Bounded(start, *end)
}

func (w Window) Start() time.Time { return w.start }

// End returns the last effective day and false when the window is unbounded.
func (w Window) End() (time.Time, bool) {
	return w.end, w.bounded
}

func (w Window) IsBounded() bool { return w.bounded }

// EndPtr converts back to the storage representation.
func (w Window) EndPtr() *time.Time {
	if !w.bounded {
		return nil
	}
	end := w.end
	return &end
}

// Valid reports whether a bounded window does not end before it starts.
func (w Window) Valid() bool {
	return !w.bounded || !w.end.Before(w.start)
}

// Contains reports whether day d is effective in the window.
func (w Window) Contains(d time.Time) bool {
	d = Day(d)
	if d.Before(w.start) {
		return false
	}
	return w.reaches(d)
}

// Overlaps reports whether the two windows share at least one day.
func (w Window) Overlaps(o Window) bool {
	return w.reaches(o.start) && o.reaches(w.start)
}

// WithStart keeps the end and moves the start.
func (w Window) WithStart(start time.Time) Window {
	w.start = Day(start)
	return w
}

// reaches reports whether the window is still effective on or after day d.
func (w Window) reaches(d time.Time) bool {
	return !w.bounded || !w.end.Before(d)
}

func (w Window) String() string {
	if !w.bounded {
		return fmt.Sprintf("[%s, open)", w.start.Format(DateLayout))
	}
	return fmt.Sprintf("[%s, %s]", w.start.Format(DateLayout), w.end.Format(DateLayout))
}

func dayBefore(t time.Time) time.Time { return t.AddDate(0, 0, -1) }

func dayAfter(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
