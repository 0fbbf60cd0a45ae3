package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/internal/source"
	"github.com/basekick-labs/flightstats/internal/stats"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func at(offsets ...int) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, s := range offsets {
		out[i] = t0.Add(time.Duration(s) * time.Second)
	}
	return out
}

func testSpec(t *testing.T) *resample.Spec {
	t.Helper()
	spec, err := resample.NewSpec(
		resample.FieldSpec{Field: "Distance", Kind: models.Numeric, Metrics: []stats.Metric{stats.Total}},
		resample.FieldSpec{Field: "AltMSL", Kind: models.Numeric, Metrics: []stats.Metric{stats.Max}},
	)
	require.NoError(t, err)
	return spec
}

func flight(name string) *source.Memory {
	m := source.NewMemory(name)
	m.AddNumeric("Distance", at(0, 30, 70, 130), []float64{0, 5, 12, 20})
	m.AddNumeric("AltMSL", at(0, 30, 70, 130), []float64{1000, 3000, 5500, 4000})
	m.AddCategorical("AtvWpt", at(0, 30, 70, 130), []string{"KAPA", "KAPA", "KDEN", "KDEN"})
	return m
}

func newRunner(t *testing.T, legsField models.FieldID) *Runner {
	return NewRunner(&RunnerConfig{
		Resampler:     resample.New(resample.DefaultOptions(), zerolog.Nop()),
		Spec:          testSpec(t),
		Interval:      time.Minute,
		LegsField:     legsField,
		MaxConcurrent: 2,
		Logger:        zerolog.Nop(),
	})
}

type failingSource struct{ err error }

func (f failingSource) Samples(context.Context, []models.FieldID) (map[models.FieldID]models.Series, error) {
	return nil, f.err
}

func counter(name string) int64 {
	return metrics.Get().Snapshot()[name].(int64)
}

func TestRun_ResultsInJobOrder(t *testing.T) {
	r := newRunner(t, "")

	var jobs []Job
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("N%d", i)
		jobs = append(jobs, Job{Name: name, Source: flight(name)})
	}

	before := counter("flights_processed")
	results, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	assert.Equal(t, before+int64(len(jobs)), counter("flights_processed"))

	for i, res := range results {
		assert.Equal(t, jobs[i].Name, res.Flight)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Table)
		assert.Equal(t, at(0, 60, 120), res.Table.Indexes())
		assert.Nil(t, res.LegTable)
	}
}

func TestRun_FailureIsolated(t *testing.T) {
	r := newRunner(t, "")
	boom := errors.New("disk on fire")

	before := counter("flights_failed")
	results, err := r.Run(context.Background(), []Job{
		{Name: "ok", Source: flight("ok")},
		{Name: "broken", Source: failingSource{err: boom}},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, counter("flights_failed"))

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Table)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Nil(t, results[1].Table)
}

func TestRun_FlightErrorsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(&RunnerConfig{
		Resampler: resample.New(resample.DefaultOptions(), zerolog.Nop()),
		Spec:      testSpec(t),
		Interval:  time.Minute,
		Logger:    zerolog.New(&buf),
	})

	_, err := r.Run(context.Background(), []Job{{Name: "broken", Source: failingSource{err: errors.New("disk on fire")}}})
	require.NoError(t, err)

	byMessage := map[string]map[string]interface{}{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		byMessage[entry["message"].(string)] = entry
	}
	started := byMessage["Starting batch run"]
	failed := byMessage["Failed to resample flight"]
	require.NotNil(t, started)
	require.NotNil(t, failed)
	assert.NotEmpty(t, started["run_id"])
	assert.Equal(t, started["run_id"], failed["run_id"])
	assert.Equal(t, "broken", failed["flight"])
}

func TestRunOne_Legs(t *testing.T) {
	r := newRunner(t, "AtvWpt")

	res := r.RunOne(context.Background(), Job{Name: "N1", Source: flight("N1")})
	require.NoError(t, res.Err)
	require.Len(t, res.Legs, 2)
	assert.Equal(t, "KAPA", res.Legs[0].Label)
	assert.Equal(t, "KDEN", res.Legs[1].Label)

	require.NotNil(t, res.LegTable)
	assert.Equal(t, at(0, 70), res.LegTable.Indexes())

	total, ok := res.LegTable.Value(t0, resample.GroupByField{Field: "Distance", Metric: stats.Total})
	require.True(t, ok)
	assert.Equal(t, 5.0, total.Float())

	peak, ok := res.LegTable.Value(t0.Add(70*time.Second), resample.GroupByField{Field: "AltMSL", Metric: stats.Max})
	require.True(t, ok)
	assert.Equal(t, 5500.0, peak.Float())
}

func TestRunOne_MissingLegsFieldSkipsLegPass(t *testing.T) {
	r := newRunner(t, "AtvWpt")
	src := source.NewMemory("N2")
	src.AddNumeric("Distance", at(0, 30), []float64{0, 5})

	res := r.RunOne(context.Background(), Job{Name: "N2", Source: src})
	require.NoError(t, res.Err)
	assert.NotNil(t, res.Table)
	assert.Empty(t, res.Legs)
	assert.Nil(t, res.LegTable)
}

func TestRunOne_NumericLegsField(t *testing.T) {
	r := newRunner(t, "Distance")

	res := r.RunOne(context.Background(), Job{Name: "N3", Source: flight("N3")})
	assert.ErrorIs(t, res.Err, resample.ErrConfiguration)
	assert.Nil(t, res.Table)
}

func TestRun_Cancelled(t *testing.T) {
	r := newRunner(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _ := r.Run(ctx, []Job{
		{Name: "a", Source: flight("a")},
		{Name: "b", Source: flight("b")},
		{Name: "c", Source: flight("c")},
	})
	require.Len(t, results, 3)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled, res.Flight)
	}
}

func TestNewRunner_DefaultConcurrency(t *testing.T) {
	r := NewRunner(&RunnerConfig{Logger: zerolog.Nop()})
	assert.Equal(t, 4, r.maxConcurrent)
}
