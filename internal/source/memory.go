// Package source provides read-only providers of raw flight samples.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// Memory is an in-process set of series for one flight.
type Memory struct {
	name string

	mu     sync.RWMutex
	series map[models.FieldID]models.Series
}

// NewMemory creates an empty flight.
func NewMemory(name string) *Memory {
	return &Memory{name: name, series: make(map[models.FieldID]models.Series)}
}

// Name returns the flight name.
func (m *Memory) Name() string { return m.name }

// Add stores series under field, replacing any previous series.
func (m *Memory) Add(field models.FieldID, series models.Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[field] = series
}

// AddNumeric stores a numeric series.
func (m *Memory) AddNumeric(field models.FieldID, indexes []time.Time, values []float64) {
	m.Add(field, models.NewNumericSeries(indexes, values))
}

// AddCategorical stores a categorical series.
func (m *Memory) AddCategorical(field models.FieldID, indexes []time.Time, values []string) {
	m.Add(field, models.NewCategoricalSeries(indexes, values))
}

// Fields returns the stored field identifiers.
func (m *Memory) Fields() []models.FieldID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.FieldID, 0, len(m.series))
	for f := range m.series {
		out = append(out, f)
	}
	return out
}

// Samples returns the stored series for the requested fields. Unknown fields
// are left out.
func (m *Memory) Samples(ctx context.Context, fields []models.FieldID) (map[models.FieldID]models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.FieldID]models.Series, len(fields))
	for _, f := range fields {
		if s, ok := m.series[f]; ok {
			out[f] = s
		}
	}
	return out, nil
}
