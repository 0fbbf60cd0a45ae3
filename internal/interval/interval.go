// Package interval provides time spans used to cut a flight into phases and
// to derive regular resampling grids.
package interval

import (
	"math"
	"time"
)

// Interval is a time span. End is not required to be after Start: callers
// stitching phase boundaries may build empty or reversed spans.
type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns the interval [start, end).
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Of returns the span covered by an ordered index. ok is false when the
// index is empty.
func Of(index []time.Time) (Interval, bool) {
	if len(index) == 0 {
		return Interval{}, false
	}
	return Interval{Start: index[0], End: index[len(index)-1]}, true
}

// Elapsed returns End - Start, which may be negative.
func (i Interval) Elapsed() time.Duration {
	return i.End.Sub(i.Start)
}

// StartJoinedTo returns the span from the start of i to the start of other.
func (i Interval) StartJoinedTo(other Interval) Interval {
	return Interval{Start: i.Start, End: other.Start}
}

// StartToEndOf returns the span from the start of i to the end of other.
func (i Interval) StartToEndOf(other Interval) Interval {
	return Interval{Start: i.Start, End: other.End}
}

// EndJoinedTo returns the span from the end of i to the end of other.
func (i Interval) EndJoinedTo(other Interval) Interval {
	return Interval{Start: i.End, End: other.End}
}

// Contains reports whether t is in [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Schedule returns a regular grid with the given step covering the interval:
// it starts at Start floored to a multiple of step (relative to the Unix
// epoch) and ends with the first grid point at or after End. A non-positive
// step yields nil.
func (i Interval) Schedule(step time.Duration) []time.Time {
	if step <= 0 {
		return nil
	}
	s := float64(step)
	first := time.Unix(0, int64(math.Floor(float64(i.Start.UnixNano())/s)*s)).UTC()
	steps := int64(math.Ceil(float64(i.End.Sub(first)) / s))
	if steps < 0 {
		steps = 0
	}
	last := first.Add(time.Duration(steps) * step)

	out := make([]time.Time, 0, steps+1)
	for t := first; t.Before(last); t = t.Add(step) {
		out = append(out, t)
	}
	return append(out, last)
}
