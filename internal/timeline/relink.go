package timeline

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Observation is the link-relevant part of a dated rate row.
type Observation struct {
	ID       uuid.UUID
	Date     time.Time
	MarginID *uuid.UUID
}

// LinkChange sets the margin reference of one observation; a nil MarginID clears it.
type LinkChange struct {
	ObservationID uuid.UUID
	MarginID      *uuid.UUID
}

// Effective returns the interval covering day d. When the set violates
// non-overlap the interval with the latest start wins.
func Effective(intervals []Interval, d time.Time) (Interval, bool) {
	return effectiveSorted(Sorted(intervals), Day(d))
}

func effectiveSorted(sorted []Interval, d time.Time) (Interval, bool) {
	// first interval starting after d; the candidate is the one before it
	i := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Window.Start().After(d)
	})
	if i == 0 {
		return Interval{}, false
	}
	iv := sorted[i-1]
	if !iv.Window.Contains(d) {
		return Interval{}, false
	}
	return iv, true
}

// Relink returns a copy of observations where every MarginID points at the
// interval effective on the observation's date, or is nil when none is.
func Relink(intervals []Interval, observations []Observation) []Observation {
	sorted := Sorted(intervals)
	out := make([]Observation, len(observations))
	for i, obs := range observations {
		obs.MarginID = nil
		if iv, ok := effectiveSorted(sorted, Day(obs.Date)); ok {
			id := iv.ID
			obs.MarginID = &id
		}
		out[i] = obs
	}
	return out
}

// LinkChanges lists only the observations whose reference Relink would alter.
func LinkChanges(intervals []Interval, observations []Observation) []LinkChange {
	relinked := Relink(intervals, observations)
	var changes []LinkChange
	for i, obs := range observations {
		if !sameRef(obs.MarginID, relinked[i].MarginID) {
			changes = append(changes, LinkChange{ObservationID: obs.ID, MarginID: relinked[i].MarginID})
		}
	}
	return changes
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
