package stats

import (
	"fmt"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// Categorical accumulates statistics over discrete samples fed in index order.
type Categorical struct {
	start        string
	end          string
	mostFrequent string
	counts       map[string]int
}

// NewCategorical starts an accumulator with its first sample.
func NewCategorical(value string) Categorical {
	return Categorical{
		start:        value,
		end:          value,
		mostFrequent: value,
		counts:       map[string]int{value: 1},
	}
}

// Update folds the next sample into the accumulator. The most frequent value
// only changes when the new count strictly exceeds the current leader's, so
// ties keep the value that got there first.
func (c *Categorical) Update(value string) {
	c.end = value
	c.counts[value]++
	if c.counts[value] > c.counts[c.mostFrequent] {
		c.mostFrequent = value
	}
}

func (c *Categorical) Start() string        { return c.start }
func (c *Categorical) End() string          { return c.end }
func (c *Categorical) MostFrequent() string { return c.mostFrequent }

// Count returns how many times value was observed.
func (c *Categorical) Count(value string) int { return c.counts[value] }

// Value returns the requested metric.
func (c *Categorical) Value(m Metric) (models.Value, error) {
	switch m {
	case Start:
		return models.Category(c.start), nil
	case End:
		return models.Category(c.end), nil
	case MostFrequent:
		return models.Category(c.mostFrequent), nil
	default:
		return models.Value{}, fmt.Errorf("%w: %s on categorical field", ErrUnsupportedMetric, m)
	}
}
