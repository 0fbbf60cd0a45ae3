// Package batch resamples many flights concurrently.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Job is one flight to resample.
type Job struct {
	Name   string
	Source resample.Source
}

// Result holds the tables computed for one flight. Err is set when any pass
// failed; the tables are nil in that case.
type Result struct {
	Flight   string
	Table    *resample.Table
	Legs     []resample.Leg
	LegTable *resample.Table
	Duration time.Duration
	Err      error
}

// RunnerConfig holds configuration for creating a runner
type RunnerConfig struct {
	Resampler     *resample.Resampler
	Spec          *resample.Spec
	Interval      time.Duration
	LegsField     models.FieldID // empty disables the per-leg pass
	MaxConcurrent int
	Logger        zerolog.Logger
}

// Runner resamples flights with a bounded number of passes in flight.
type Runner struct {
	resampler     *resample.Resampler
	spec          *resample.Spec
	every         time.Duration
	legsField     models.FieldID
	maxConcurrent int
	logger        zerolog.Logger
}

// NewRunner creates a runner
func NewRunner(cfg *RunnerConfig) *Runner {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		resampler:     cfg.Resampler,
		spec:          cfg.Spec,
		every:         cfg.Interval,
		legsField:     cfg.LegsField,
		maxConcurrent: maxConcurrent,
		logger:        cfg.Logger.With().Str("component", "batch").Logger(),
	}
}

// Run resamples every job and returns one result per job, in job order. A
// failing flight does not stop the others. The error is non-nil only when
// ctx was cancelled before every job was scheduled.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	runID := uuid.New().String()[:8]
	logger := r.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	logger.Info().
		Int("flights", len(jobs)).
		Int("max_concurrent", r.maxConcurrent).
		Dur("interval", r.every).
		Msg("Starting batch run")

	sem := semaphore.NewWeighted(int64(r.maxConcurrent))
	results := make([]*Result, len(jobs))
	var wg sync.WaitGroup
	var runErr error

	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = fmt.Errorf("batch cancelled: %w", err)
			for j := i; j < len(jobs); j++ {
				results[j] = &Result{Flight: jobs[j].Name, Err: err}
			}
			break
		}

		wg.Add(1)
		go func(idx int, job Job) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = r.runJob(ctx, job, logger)
		}(i, job)
	}

	wg.Wait()

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}

	logger.Info().
		Int("success", len(jobs)-failed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch run completed")

	return results, runErr
}

// RunOne resamples a single flight: the interval table, then, when a legs
// field is configured and present, one row per leg.
func (r *Runner) RunOne(ctx context.Context, job Job) *Result {
	return r.runJob(ctx, job, r.logger)
}

func (r *Runner) runJob(ctx context.Context, job Job, logger zerolog.Logger) *Result {
	start := time.Now()
	m := metrics.Get()
	res := &Result{Flight: job.Name}

	if err := r.runOne(ctx, job, res); err != nil {
		m.IncFlightsFailed()
		logger.Error().
			Err(err).
			Str("flight", job.Name).
			Msg("Failed to resample flight")
		return &Result{Flight: job.Name, Err: err, Duration: time.Since(start)}
	}

	m.IncFlightsProcessed()
	res.Duration = time.Since(start)
	logger.Debug().
		Str("flight", job.Name).
		Int("rows", res.Table.Len()).
		Int("legs", len(res.Legs)).
		Dur("elapsed", res.Duration).
		Msg("Flight resampled")
	return res
}

func (r *Runner) runOne(ctx context.Context, job Job, res *Result) error {
	table, err := r.resampler.GroupBy(ctx, job.Source, r.spec, r.every)
	if err != nil {
		return fmt.Errorf("group by %s: %w", r.every, err)
	}
	res.Table = table

	if r.legsField == "" {
		return nil
	}
	samples, err := job.Source.Samples(ctx, []models.FieldID{r.legsField})
	if err != nil {
		return fmt.Errorf("read legs field %s: %w", r.legsField, err)
	}
	series, ok := samples[r.legsField]
	if !ok {
		return nil
	}
	if series.Kind != models.Categorical {
		return &resample.ConfigurationError{Field: r.legsField, Reason: "legs field must be categorical"}
	}

	res.Legs = resample.Legs(series, time.Time{})
	legTable, err := r.resampler.Extract(ctx, job.Source, r.spec, resample.Windows(res.Legs))
	if err != nil {
		return fmt.Errorf("extract legs: %w", err)
	}
	res.LegTable = legTable
	return nil
}
