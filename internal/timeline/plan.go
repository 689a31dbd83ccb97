package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateStart is returned when another interval already starts on the candidate's start date.
	ErrDuplicateStart = errors.New("an interval already starts on this date")
	// ErrInvalidWindow is returned for a bounded window that ends before it starts.
	ErrInvalidWindow = errors.New("end date is before start date")
	// ErrOverlap is returned when two intervals cover the same day.
	ErrOverlap = errors.New("intervals overlap")
)

// Interval is one margin value and the window it is effective in.
type Interval struct {
	ID     uuid.UUID
	Value  decimal.Decimal
	Window Window
}

// Action is the remedy applied to an existing interval that collides with a candidate.
type Action string

const (
	ActionClose  Action = "close"
	ActionShift  Action = "shift"
	ActionDelete Action = "delete"
)

// Change describes one neighbour adjustment. Interval holds the neighbour as
// it is now; Window is what it becomes (unused for ActionDelete).
type Change struct {
	Action   Action
	Interval Interval
	Window   Window
}

// Plan is the set of neighbour adjustments required before Candidate can be written.
type Plan struct {
	Candidate Window
	Changes   []Change
}

// HasConflicts reports whether writing the candidate touches any other interval.
func (p Plan) HasConflicts() bool { return len(p.Changes) > 0 }

// Deleted returns the ids of the intervals the plan removes.
func (p Plan) Deleted() []uuid.UUID {
	var ids []uuid.UUID
	for _, c := range p.Changes {
		if c.Action == ActionDelete {
			ids = append(ids, c.Interval.ID)
		}
	}
	return ids
}

// PlanFor classifies every existing interval against candidate. The interval
// with id exclude (the record being updated) is ignored; pass uuid.Nil on create.
//
// Earlier intervals still effective on the candidate's start are closed the day
// before it. Later intervals are deleted when the candidate is open ended. For a
// bounded candidate, later intervals starting on or before its end are shifted to
// the day after it, or deleted when nothing of them would remain.
func PlanFor(existing []Interval, candidate Window, exclude uuid.UUID) (Plan, error) {
	if !candidate.Valid() {
		return Plan{}, ErrInvalidWindow
	}

	plan := Plan{Candidate: candidate}
	newStart := candidate.Start()
	newEnd, bounded := candidate.End()

	for _, iv := range Sorted(existing) {
		if exclude != uuid.Nil && iv.ID == exclude {
			continue
		}
		start := iv.Window.Start()

		switch {
		case start.Equal(newStart):
			return Plan{}, fmt.Errorf("%w: %s", ErrDuplicateStart, newStart.Format(DateLayout))

		case start.Before(newStart):
			if iv.Window.reaches(newStart) {
				plan.Changes = append(plan.Changes, Change{
					Action:   ActionClose,
					Interval: iv,
					Window:   Bounded(start, dayBefore(newStart)),
				})
			}

		case !bounded:
			plan.Changes = append(plan.Changes, Change{Action: ActionDelete, Interval: iv})

		case !start.After(newEnd):
			shifted := iv.Window.WithStart(dayAfter(newEnd))
			if shifted.Valid() {
				plan.Changes = append(plan.Changes, Change{Action: ActionShift, Interval: iv, Window: shifted})
			} else {
				plan.Changes = append(plan.Changes, Change{Action: ActionDelete, Interval: iv})
			}
		}
	}

	return plan, nil
}

// Apply returns the interval set that results from executing plan and writing
// target with the plan's candidate window. Any previous version of target is replaced.
func Apply(existing []Interval, plan Plan, target Interval) []Interval {
	changed := make(map[uuid.UUID]Change, len(plan.Changes))
	for _, c := range plan.Changes {
		changed[c.Interval.ID] = c
	}

	out := make([]Interval, 0, len(existing)+1)
	for _, iv := range existing {
		if iv.ID == target.ID {
			continue
		}
		if c, ok := changed[iv.ID]; ok {
			if c.Action == ActionDelete {
				continue
			}
			iv.Window = c.Window
		}
		out = append(out, iv)
	}

	target.Window = plan.Candidate
	out = append(out, target)
	return Sorted(out)
}

// CheckNonOverlap verifies that no two intervals share a start date or a covered day.
func CheckNonOverlap(intervals []Interval) error {
	sorted := Sorted(intervals)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Window.Start().Equal(cur.Window.Start()) {
			return fmt.Errorf("%w: %s and %s", ErrDuplicateStart, prev.ID, cur.ID)
		}
		if prev.Window.Overlaps(cur.Window) {
			return fmt.Errorf("%w: %s %s and %s %s", ErrOverlap, prev.ID, prev.Window, cur.ID, cur.Window)
		}
	}
	return nil
}

// Sorted returns a copy of intervals ordered by start date ascending.
func Sorted(intervals []Interval) []Interval {
	out := make([]Interval, len(intervals))
	copy(out, intervals)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Window.Start().Before(out[j].Window.Start())
	})
	return out
}
