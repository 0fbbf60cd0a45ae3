// Package resample aligns independently sampled telemetry fields onto a
// shared schedule and summarizes every bucket of every field.
package resample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/basekick-labs/flightstats/internal/frame"
	"github.com/basekick-labs/flightstats/internal/interval"
	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/internal/schedule"
	"github.com/basekick-labs/flightstats/internal/stats"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
)

// Table is the output of a resampling pass: one row per bucket, one column
// per (field, metric).
type Table = frame.Frame[GroupByField, models.Value]

// Resampler runs resampling passes. It holds no per-pass state, so a single
// Resampler may serve concurrent passes.
type Resampler struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a Resampler.
func New(opts Options, logger zerolog.Logger) *Resampler {
	if opts.Mode == "" {
		opts.Mode = ScheduleObserved
	}
	return &Resampler{
		opts:    opts,
		logger:  logger.With().Str("component", "resampler").Logger(),
		metrics: metrics.Get(),
	}
}

// field is one declared field with its samples, ready for bucketing.
type field struct {
	spec   FieldSpec
	series models.Series
}

// window is a run of samples [lo, hi) summarized at key.
type window struct {
	key    time.Time
	lo, hi int
}

// GroupBy resamples the fields of spec at the given interval. Bucket i covers
// [b_i, b_i+1), the last bucket is open-ended and samples before the first
// boundary join the first bucket. A bucket without samples for a field leaves
// that cell empty; fields the source does not provide never appear.
func (r *Resampler) GroupBy(ctx context.Context, src Source, spec *Spec, every time.Duration) (*Table, error) {
	start := time.Now()
	r.metrics.IncPasses()

	table, buckets, err := r.groupBy(ctx, src, spec, every)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.metrics.IncBuckets(int64(buckets))
	r.metrics.RecordPassLatency(time.Since(start).Microseconds())
	r.logger.Debug().
		Dur("interval", every).
		Str("mode", string(r.opts.Mode)).
		Int("buckets", buckets).
		Int("rows", table.Len()).
		Int("columns", len(table.Fields())).
		Dur("elapsed", time.Since(start)).
		Msg("Resampling pass complete")
	return table, nil
}

func (r *Resampler) groupBy(ctx context.Context, src Source, spec *Spec, every time.Duration) (*Table, int, error) {
	if every < time.Second {
		return nil, 0, &ConfigurationError{
			Reason: "invalid interval",
			Err:    fmt.Errorf("%w: got %s", schedule.ErrInvalidInterval, every),
		}
	}
	fields, err := r.load(ctx, src, spec)
	if err != nil {
		return nil, 0, err
	}

	indexes := make([][]time.Time, len(fields))
	for i, f := range fields {
		indexes[i] = f.series.Indexes
	}
	boundaries, err := r.boundaries(schedule.Union(indexes...), every)
	if err != nil {
		return nil, 0, err
	}

	table := frame.New[GroupByField, models.Value]()
	for _, f := range fields {
		if err := r.summarize(table, f, bucketWindows(f.series.Indexes, boundaries)); err != nil {
			return nil, 0, err
		}
	}
	return table, len(boundaries), nil
}

func (r *Resampler) boundaries(index []time.Time, every time.Duration) ([]time.Time, error) {
	switch r.opts.Mode {
	case ScheduleRegular:
		span, ok := interval.Of(index)
		if !ok {
			return []time.Time{}, nil
		}
		return span.Schedule(every), nil
	case ScheduleObserved:
		b, err := schedule.Observed(index, every)
		if err != nil {
			return nil, &ConfigurationError{Reason: "build schedule", Err: err}
		}
		return b, nil
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown schedule mode %q", r.opts.Mode)}
	}
}

// Extract summarizes every field of spec over each window, keyed by the
// window start. Windows are processed in start order; samples outside every
// window are ignored. Two windows starting at the same time must produce the
// same values or the pass fails with a conflicting write.
func (r *Resampler) Extract(ctx context.Context, src Source, spec *Spec, windows []interval.Interval) (*Table, error) {
	start := time.Now()
	r.metrics.IncPasses()

	table, err := r.extract(ctx, src, spec, windows)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.metrics.IncBuckets(int64(len(windows)))
	r.metrics.RecordPassLatency(time.Since(start).Microseconds())
	r.logger.Debug().
		Int("windows", len(windows)).
		Int("rows", table.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Window extraction complete")
	return table, nil
}

func (r *Resampler) extract(ctx context.Context, src Source, spec *Spec, windows []interval.Interval) (*Table, error) {
	fields, err := r.load(ctx, src, spec)
	if err != nil {
		return nil, err
	}

	ordered := slices.Clone(windows)
	slices.SortStableFunc(ordered, func(a, b interval.Interval) int {
		return a.Start.Compare(b.Start)
	})

	table := frame.New[GroupByField, models.Value]()
	for _, f := range fields {
		idx := f.series.Indexes
		runs := make([]window, 0, len(ordered))
		for _, w := range ordered {
			lo := lowerBound(idx, w.Start)
			hi := lowerBound(idx, w.End)
			if hi > lo {
				runs = append(runs, window{key: w.Start, lo: lo, hi: hi})
			}
		}
		if err := r.summarize(table, f, runs); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// load pulls the declared fields from src, checks their kinds and prepares
// their samples. Fields keep the spec's declaration order.
func (r *Resampler) load(ctx context.Context, src Source, spec *Spec) ([]field, error) {
	if spec == nil || spec.Len() == 0 {
		return nil, &ConfigurationError{Reason: "empty metric specification"}
	}
	raw, err := src.Samples(ctx, spec.IDs())
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	fields := make([]field, 0, len(raw))
	for _, fs := range spec.Fields() {
		series, ok := raw[fs.Field]
		if !ok {
			continue
		}
		if fs.Kind == models.Numeric && series.Kind != models.Numeric {
			return nil, &ConfigurationError{
				Field:  fs.Field,
				Reason: fmt.Sprintf("declared %s but source provides %s samples", fs.Kind, series.Kind),
			}
		}
		if err := series.Validate(); err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Field, err)
		}
		series = series.Sorted()
		if r.opts.SkipNonFinite && series.Kind == models.Numeric {
			series = r.dropNonFinite(series)
		}
		if fs.Kind == models.Categorical && series.Kind == models.Numeric {
			series = codesAsCategories(series)
		}
		if series.Len() == 0 {
			continue
		}
		fields = append(fields, field{spec: fs, series: series})
	}
	return fields, nil
}

// codesAsCategories turns numeric codes (cylinder index, on/off flags) into
// categories: 3 becomes "3", 0.5 becomes "0.5".
func codesAsCategories(s models.Series) models.Series {
	categories := make([]string, len(s.Numbers))
	for i, v := range s.Numbers {
		categories[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return models.NewCategoricalSeries(s.Indexes, categories)
}

func (r *Resampler) dropNonFinite(s models.Series) models.Series {
	keep := 0
	for _, v := range s.Numbers {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			keep++
		}
	}
	if keep == len(s.Numbers) {
		return s
	}
	r.metrics.IncSamplesSkipped(int64(len(s.Numbers) - keep))

	out := models.Series{
		Kind:    models.Numeric,
		Indexes: make([]time.Time, 0, keep),
		Numbers: make([]float64, 0, keep),
	}
	for i, v := range s.Numbers {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Indexes = append(out.Indexes, s.Indexes[i])
		out.Numbers = append(out.Numbers, v)
	}
	return out
}

// summarize feeds each window of f into a fresh accumulator and writes every
// requested metric at the window key.
func (r *Resampler) summarize(table *Table, f field, windows []window) error {
	var samples, cells int64
	write := func(key time.Time, acc interface {
		Value(stats.Metric) (models.Value, error)
	}) error {
		for _, m := range f.spec.Metrics {
			v, err := acc.Value(m)
			if err != nil {
				return &ConfigurationError{Field: f.spec.Field, Metric: m.String(), Reason: "read metric", Err: err}
			}
			col := GroupByField{Field: f.spec.Field, Metric: m}
			if err := table.Append(key, col, v); err != nil {
				if errors.Is(err, frame.ErrConflictingWrite) {
					r.metrics.IncConflicts()
				}
				return fmt.Errorf("write %s: %w", col, err)
			}
			cells++
		}
		return nil
	}

	s := f.series
	switch f.spec.Kind {
	case models.Numeric:
		for _, w := range windows {
			acc := stats.NewNumeric(s.Numbers[w.lo], s.Indexes[w.lo])
			for i := w.lo + 1; i < w.hi; i++ {
				acc.Update(s.Numbers[i], s.Indexes[i])
			}
			samples += int64(w.hi - w.lo)
			if err := write(w.key, &acc); err != nil {
				return err
			}
		}
	case models.Categorical:
		for _, w := range windows {
			acc := stats.NewCategorical(s.Categories[w.lo])
			for i := w.lo + 1; i < w.hi; i++ {
				acc.Update(s.Categories[i])
			}
			samples += int64(w.hi - w.lo)
			if err := write(w.key, &acc); err != nil {
				return err
			}
		}
	}

	r.metrics.IncSamples(samples)
	r.metrics.IncCellsWritten(cells)
	return nil
}

func (r *Resampler) fail(err error) {
	r.metrics.IncPassesFailed()
	if errors.Is(err, ErrConfiguration) {
		r.metrics.IncConfigErrors()
	}
	r.logger.Error().Err(err).Msg("Resampling pass failed")
}

// bucketWindows cuts a sorted index into one run per boundary. Samples before
// the first boundary join the first run; a sample on a boundary starts the
// next run. Empty runs are omitted.
func bucketWindows(index []time.Time, boundaries []time.Time) []window {
	if len(index) == 0 || len(boundaries) == 0 {
		return nil
	}
	runs := make([]window, 0, len(boundaries))
	lo := 0
	for i, b := range boundaries {
		hi := len(index)
		if i+1 < len(boundaries) {
			hi = lowerBound(index, boundaries[i+1])
		}
		if hi > lo {
			runs = append(runs, window{key: b, lo: lo, hi: hi})
			lo = hi
		}
	}
	return runs
}

// lowerBound returns the position of the first index at or after t.
func lowerBound(index []time.Time, t time.Time) int {
	i, _ := slices.BinarySearchFunc(index, t, time.Time.Compare)
	return i
}
