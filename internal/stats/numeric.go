// Package stats implements single-pass accumulators that summarize the
// samples of one field within one bucket.
package stats

import (
	"fmt"
	"slices"
	"time"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// Numeric accumulates statistics over numeric samples fed in index order.
type Numeric struct {
	start, end float64
	min, max   float64
	minIndex   time.Time
	maxIndex   time.Time
	count      int
	sum        float64

	// kept for the median, which cannot be computed incrementally
	values []float64
}

// NewNumeric starts an accumulator with its first sample.
func NewNumeric(value float64, index time.Time) Numeric {
	return Numeric{
		start:    value,
		end:      value,
		min:      value,
		max:      value,
		minIndex: index,
		maxIndex: index,
		count:    1,
		sum:      value,
		values:   []float64{value},
	}
}

// Update folds the next sample into the accumulator.
func (n *Numeric) Update(value float64, index time.Time) {
	n.end = value
	if value < n.min {
		n.min = value
		n.minIndex = index
	}
	if value > n.max {
		n.max = value
		n.maxIndex = index
	}
	n.count++
	n.sum += value
	n.values = append(n.values, value)
}

func (n *Numeric) Count() int          { return n.count }
func (n *Numeric) Start() float64      { return n.start }
func (n *Numeric) End() float64        { return n.end }
func (n *Numeric) Min() float64        { return n.min }
func (n *Numeric) Max() float64        { return n.max }
func (n *Numeric) MinIndex() time.Time { return n.minIndex }
func (n *Numeric) MaxIndex() time.Time { return n.maxIndex }
func (n *Numeric) Sum() float64        { return n.sum }

// Total is End - Start.
func (n *Numeric) Total() float64 { return n.end - n.start }

// Average is Sum / Count.
func (n *Numeric) Average() float64 { return n.sum / float64(n.count) }

// Median is the middle of the sorted values, or the mean of the two middle
// values when the count is even.
func (n *Numeric) Median() float64 {
	sorted := slices.Clone(n.values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Value returns the requested metric.
func (n *Numeric) Value(m Metric) (models.Value, error) {
	switch m {
	case Start:
		return models.Number(n.start), nil
	case End:
		return models.Number(n.end), nil
	case Min:
		return models.Number(n.min), nil
	case Max:
		return models.Number(n.max), nil
	case Total:
		return models.Number(n.Total()), nil
	case Sum:
		return models.Number(n.sum), nil
	case Average:
		return models.Number(n.Average()), nil
	case Median:
		return models.Number(n.Median()), nil
	case MinIndex:
		return models.Timestamp(n.minIndex), nil
	case MaxIndex:
		return models.Timestamp(n.maxIndex), nil
	default:
		return models.Value{}, fmt.Errorf("%w: %s on numeric field", ErrUnsupportedMetric, m)
	}
}
