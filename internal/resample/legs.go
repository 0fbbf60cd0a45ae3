package resample

import (
	"time"

	"github.com/basekick-labs/flightstats/internal/interval"
	"github.com/basekick-labs/flightstats/pkg/models"
)

// Leg is a stretch of flight during which a categorical field, typically the
// active waypoint, kept the same value.
type Leg struct {
	Label    string
	Interval interval.Interval
}

// Legs splits a categorical series at every change of value. Each leg ends
// where the next one starts; the last leg ends at end, or just after the last
// sample when end is zero. Numeric or empty series yield no legs.
func Legs(series models.Series, end time.Time) []Leg {
	if series.Kind != models.Categorical || series.Len() == 0 {
		return nil
	}
	s := series.Sorted()
	if end.IsZero() {
		end = s.Indexes[s.Len()-1].Add(time.Nanosecond)
	}

	var legs []Leg
	for i, v := range s.Categories {
		if i > 0 && v == s.Categories[i-1] {
			continue
		}
		if n := len(legs); n > 0 {
			legs[n-1].Interval.End = s.Indexes[i]
		}
		legs = append(legs, Leg{Label: v, Interval: interval.New(s.Indexes[i], end)})
	}
	return legs
}

// Windows returns the intervals of legs.
func Windows(legs []Leg) []interval.Interval {
	out := make([]interval.Interval, len(legs))
	for i, l := range legs {
		out[i] = l.Interval
	}
	return out
}
