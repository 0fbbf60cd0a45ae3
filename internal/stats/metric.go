package stats

import (
	"fmt"
	"strings"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// Metric is a summary statistic computed over one bucket of one field.
type Metric int

const (
	Start Metric = iota
	End
	Min
	Max
	// Total is the last value minus the first value in the bucket, the
	// meaningful aggregate for counters such as distance or a fuel totalizer.
	Total
	// Sum is the arithmetic sum of every value in the bucket.
	Sum
	Average
	Median
	// MinIndex is the time of the first sample that reached the minimum.
	MinIndex
	// MaxIndex is the time of the first sample that reached the maximum.
	MaxIndex
	MostFrequent
)

var metricNames = map[Metric]string{
	Start:        "start",
	End:          "end",
	Min:          "min",
	Max:          "max",
	Total:        "total",
	Sum:          "sum",
	Average:      "average",
	Median:       "median",
	MinIndex:     "min_index",
	MaxIndex:     "max_index",
	MostFrequent: "most_frequent",
}

var metricAliases = map[string]Metric{
	"avg":          Average,
	"mean":         Average,
	"first":        Start,
	"last":         End,
	"delta":        Total,
	"mostfrequent": MostFrequent,
	"maxfreq":      MostFrequent,
	"mini":         MinIndex,
	"maxi":         MaxIndex,
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// ParseMetric converts a metric name (case-insensitive) to a Metric.
func ParseMetric(s string) (Metric, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for m, name := range metricNames {
		if name == key {
			return m, nil
		}
	}
	if m, ok := metricAliases[key]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// SupportedBy reports whether m can be computed for fields of the given kind.
func (m Metric) SupportedBy(kind models.FieldKind) bool {
	switch kind {
	case models.Numeric:
		return m >= Start && m <= MaxIndex
	case models.Categorical:
		return m == Start || m == End || m == MostFrequent
	default:
		return false
	}
}
