package resample

import (
	"fmt"
	"strings"

	"github.com/basekick-labs/flightstats/internal/stats"
	"github.com/basekick-labs/flightstats/pkg/models"
)

// GroupByField identifies one output column: a field and the metric computed
// over it.
type GroupByField struct {
	Field  models.FieldID
	Metric stats.Metric
}

// Key returns the column name, "<field>.<metric>".
func (g GroupByField) Key() string {
	return string(g.Field) + "." + g.Metric.String()
}

func (g GroupByField) String() string { return g.Key() }

// ParseGroupByField parses a column name produced by Key. Field names may
// contain dots; the metric is taken after the last one.
func ParseGroupByField(s string) (GroupByField, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return GroupByField{}, fmt.Errorf("invalid column name %q (expected 'field.metric')", s)
	}
	m, err := stats.ParseMetric(s[i+1:])
	if err != nil {
		return GroupByField{}, fmt.Errorf("invalid column name %q: %w", s, err)
	}
	return GroupByField{Field: models.FieldID(s[:i]), Metric: m}, nil
}
