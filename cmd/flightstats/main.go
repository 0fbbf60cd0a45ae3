package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/basekick-labs/flightstats/internal/batch"
	"github.com/basekick-labs/flightstats/internal/config"
	"github.com/basekick-labs/flightstats/internal/export"
	"github.com/basekick-labs/flightstats/internal/logger"
	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/internal/shutdown"
	"github.com/basekick-labs/flightstats/internal/source"
	"github.com/basekick-labs/flightstats/internal/storage"
	"github.com/basekick-labs/flightstats/pkg/models"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(Version)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	metrics.Init(logger.Get("metrics"))
	log.Info().Str("version", Version).Msg("Starting flightstats")

	coordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))
	ctx, cancel := coordinator.Context(context.Background())

	runErr := run(ctx, cfg, coordinator)
	cancel()

	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown finished with errors")
	}

	log.Info().Interface("metrics", metrics.Get().Snapshot()).Msg("Run summary")

	if runErr != nil {
		log.Error().Err(runErr).Msg("flightstats failed")
		os.Exit(1)
	}
	if sig := coordinator.Signal(); sig != nil {
		log.Warn().Str("signal", sig.String()).Msg("Run interrupted")
		os.Exit(130)
	}
}

// run resamples every selected flight and exports the tables. Flights that
// fail are logged and counted; run fails only when nothing could be read or
// every flight failed.
func run(ctx context.Context, cfg *config.Config, coordinator *shutdown.Coordinator) error {
	spec, err := buildSpec(&cfg.Resample)
	if err != nil {
		metrics.Get().IncConfigErrors()
		return fmt.Errorf("field specs: %w", err)
	}
	mode, err := resample.ParseScheduleMode(cfg.Resample.ScheduleMode)
	if err != nil {
		return err
	}

	if cfg.Metrics.TextfilePath != "" {
		coordinator.RegisterHook("metrics-textfile", func(ctx context.Context) error {
			return writeTextfile(cfg.Metrics.TextfilePath)
		}, shutdown.PriorityMetrics)
	}

	jobs, err := loadJobs(ctx, &cfg.Source, coordinator)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Warn().Msg("No flights found in source")
		return nil
	}

	backend, err := storage.NewLocalBackend(cfg.Export.Directory, logger.Get("storage"))
	if err != nil {
		return err
	}
	coordinator.Register("export-storage", backend, shutdown.PriorityExport)

	exporter, err := export.New(&cfg.Export, backend, logger.Get("export"))
	if err != nil {
		return err
	}

	runner := batch.NewRunner(&batch.RunnerConfig{
		Resampler:     resample.New(resample.Options{Mode: mode, SkipNonFinite: cfg.Resample.SkipNonFinite}, logger.Get("resampler")),
		Spec:          spec,
		Interval:      cfg.Resample.Interval,
		LegsField:     models.FieldID(cfg.Resample.LegsField),
		MaxConcurrent: cfg.Batch.Workers,
		Logger:        logger.Get("batch"),
	})

	results, err := runner.Run(ctx, jobs)
	if err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		if _, err := exporter.WriteFile(ctx, res.Flight, "", res.Table); err != nil {
			return err
		}
		if res.LegTable != nil {
			if _, err := exporter.WriteFile(ctx, res.Flight, "legs", res.LegTable); err != nil {
				return err
			}
		}
	}

	if failed == len(results) {
		return fmt.Errorf("all %d flights failed", failed)
	}
	return nil
}

// buildSpec turns the configured field specs into a Spec, falling back to
// the default leg summary when none are given.
func buildSpec(cfg *config.ResampleConfig) (*resample.Spec, error) {
	if len(cfg.NumericFields) == 0 && len(cfg.CategoricalFields) == 0 {
		return resample.DefaultSpec(), nil
	}
	numeric, err := resample.ParseFieldSpecs(cfg.NumericFields, models.Numeric)
	if err != nil {
		return nil, err
	}
	categorical, err := resample.ParseFieldSpecs(cfg.CategoricalFields, models.Categorical)
	if err != nil {
		return nil, err
	}
	return resample.NewSpec(append(numeric, categorical...)...)
}

// loadJobs opens the configured source and returns one job per selected
// flight. SQL connections are closed by the coordinator.
func loadJobs(ctx context.Context, cfg *config.SourceConfig, coordinator *shutdown.Coordinator) ([]batch.Job, error) {
	selected := func(name string) bool {
		return len(cfg.Flights) == 0 || slices.Contains(cfg.Flights, name)
	}

	var jobs []batch.Job
	switch cfg.Kind {
	case "msgpack":
		decoder := source.NewMsgPackDecoder(logger.Get("msgpack"), cfg.MaxPayloadSize)
		flights, err := decoder.ReadPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		for _, f := range flights {
			if selected(f.Name()) {
				jobs = append(jobs, batch.Job{Name: f.Name(), Source: f})
			}
		}

	case "sql":
		db, err := source.OpenDB(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		coordinator.Register("sql-source", db, shutdown.PrioritySource)
		if err := source.ConfigureDB(ctx, db, cfg.Driver, source.DBOptions{
			MaxOpenConns: cfg.MaxOpenConns,
			MemoryLimit:  cfg.DuckDBMemoryLimit,
			Threads:      cfg.DuckDBThreads,
		}); err != nil {
			return nil, err
		}

		src, err := source.NewSQL(db, cfg.Driver, cfg.Table, logger.Get("sql"))
		if err != nil {
			return nil, err
		}
		names, err := src.Flights(ctx)
		if err != nil {
			return nil, err
		}
		breaker := source.NewBreaker(&source.BreakerConfig{
			MaxFailures: cfg.BreakerMaxFailures,
			Cooldown:    cfg.BreakerCooldown,
		}, logger.Get("sql"))
		for _, name := range names {
			if selected(name) {
				jobs = append(jobs, batch.Job{Name: name, Source: breaker.Guard(src.Flight(name))})
			}
		}

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}

	for _, name := range cfg.Flights {
		if !slices.ContainsFunc(jobs, func(j batch.Job) bool { return j.Name == name }) {
			log.Warn().Str("flight", name).Err(source.ErrUnknownFlight).Msg("Requested flight not found")
		}
	}
	return jobs, nil
}

// writeTextfile writes the counters in Prometheus text format, replacing
// path atomically.
func writeTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(metrics.Get().PrometheusFormat()), 0644); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("rename metrics textfile: %w", err), os.Remove(tmp))
	}
	return nil
}
