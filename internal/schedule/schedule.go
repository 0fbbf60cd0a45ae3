// Package schedule derives bucket boundaries from irregular sample indexes.
package schedule

import (
	"fmt"
	"slices"
	"time"
)

// Tolerance is the half-width of the band inside which two boundaries are
// treated as the same bucket.
const Tolerance = 500 * time.Millisecond

// Round returns t rounded to the nearest multiple of interval, counted from
// the Unix epoch. Halfway values round up.
func Round(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	ns, step := t.UnixNano(), int64(interval)
	q := ns / step
	r := ns % step
	if r < 0 {
		q--
		r += step
	}
	if 2*r >= step {
		q++
	}
	return time.Unix(0, q*step).UTC()
}

// SameBucket reports whether a and b lie within one second of each other,
// half a second on either side.
func SameBucket(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < Tolerance
}

// Union merges several indexes into one ordered index without duplicates.
func Union(indexes ...[]time.Time) []time.Time {
	n := 0
	for _, idx := range indexes {
		n += len(idx)
	}
	out := make([]time.Time, 0, n)
	for _, idx := range indexes {
		out = append(out, idx...)
	}
	slices.SortFunc(out, time.Time.Compare)
	return slices.CompactFunc(out, time.Time.Equal)
}

// Observed returns one boundary per distinct rounded timestamp of index, in
// increasing order. An empty index yields an empty schedule.
func Observed(index []time.Time, interval time.Duration) ([]time.Time, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if len(index) == 0 {
		return []time.Time{}, nil
	}

	rounded := make([]time.Time, len(index))
	for i, t := range index {
		rounded[i] = Round(t, interval)
	}
	slices.SortFunc(rounded, time.Time.Compare)

	out := rounded[:1]
	for _, t := range rounded[1:] {
		if SameBucket(t, out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Locate returns the position of the bucket t belongs to: the last boundary
// at or before t, or 0 when t precedes the first boundary. It returns -1 for
// an empty schedule.
func Locate(boundaries []time.Time, t time.Time) int {
	if len(boundaries) == 0 {
		return -1
	}
	i, found := slices.BinarySearchFunc(boundaries, t, time.Time.Compare)
	if found {
		return i
	}
	if i == 0 {
		return 0
	}
	return i - 1
}
