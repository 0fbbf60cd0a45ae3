package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basekick-labs/flightstats/internal/config"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/internal/shutdown"
	"github.com/basekick-labs/flightstats/internal/stats"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func writeFlight(t *testing.T, dir, name string) {
	t.Helper()
	s := t0.Unix()
	payload := map[string]interface{}{
		"m": name,
		"columns": map[string]interface{}{
			"time":     []interface{}{s, s + 30, s + 70, s + 130},
			"Distance": []interface{}{0.0, 5.0, 12.0, 20.0},
			"AtvWpt":   []interface{}{"KAPA", "KAPA", "KDEN", "KDEN"},
		},
	}
	data, err := msgpack.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".msgpack"), data, 0644))
}

func testConfig(t *testing.T) *config.Config {
	in := t.TempDir()
	writeFlight(t, in, "N1")
	writeFlight(t, in, "N2")

	return &config.Config{
		Resample: config.ResampleConfig{
			Interval:      time.Minute,
			ScheduleMode:  "observed",
			SkipNonFinite: true,
			NumericFields: []string{"Distance:total"},
			LegsField:     "AtvWpt",
		},
		Source: config.SourceConfig{Kind: "msgpack", Path: in},
		Export: config.ExportConfig{
			Format:      "csv",
			Directory:   filepath.Join(t.TempDir(), "out"),
			IndexName:   "time",
			Compression: "snappy",
		},
		Batch:   config.BatchConfig{Workers: 2},
		Metrics: config.MetricsConfig{TextfilePath: filepath.Join(t.TempDir(), "flightstats.prom")},
	}
}

func TestBuildSpec(t *testing.T) {
	spec, err := buildSpec(&config.ResampleConfig{})
	require.NoError(t, err)
	assert.Equal(t, resample.DefaultSpec().Columns(), spec.Columns())

	spec, err = buildSpec(&config.ResampleConfig{
		NumericFields:     []string{"AltMSL:max,min"},
		CategoricalFields: []string{"AfcsOn:most_frequent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []resample.GroupByField{
		{Field: "AltMSL", Metric: stats.Max},
		{Field: "AltMSL", Metric: stats.Min},
		{Field: "AfcsOn", Metric: stats.MostFrequent},
	}, spec.Columns())

	_, err = buildSpec(&config.ResampleConfig{CategoricalFields: []string{"AfcsOn:average"}})
	assert.ErrorIs(t, err, resample.ErrConfiguration)
}

func TestRun_MsgPackToCSV(t *testing.T) {
	cfg := testConfig(t)
	coordinator := shutdown.New(time.Second, zerolog.Nop())

	require.NoError(t, run(context.Background(), cfg, coordinator))
	require.NoError(t, coordinator.Shutdown())

	data, err := os.ReadFile(filepath.Join(cfg.Export.Directory, "N1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "flight,time,Distance.total\n"+
		"N1,2024-03-01T10:00:00Z,5\n"+
		"N1,2024-03-01T10:01:00Z,0\n"+
		"N1,2024-03-01T10:02:00Z,0\n", string(data))

	legs, err := os.ReadFile(filepath.Join(cfg.Export.Directory, "N1_legs.csv"))
	require.NoError(t, err)
	assert.Equal(t, "flight,time,Distance.total\n"+
		"N1,2024-03-01T10:00:00Z,5\n"+
		"N1,2024-03-01T10:01:10Z,8\n", string(legs))

	_, err = os.Stat(filepath.Join(cfg.Export.Directory, "N2.csv"))
	assert.NoError(t, err)

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "flightstats_exports_written_total")
}

func TestRun_FlightFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Flights = []string{"N2", "N9"}
	cfg.Resample.LegsField = ""

	require.NoError(t, run(context.Background(), cfg, shutdown.New(time.Second, zerolog.Nop())))

	entries, err := os.ReadDir(cfg.Export.Directory)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "N2.csv", entries[0].Name())
}

func TestRun_AllFlightsFail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resample.NumericFields = []string{"AtvWpt:max"}
	cfg.Resample.LegsField = ""

	err := run(context.Background(), cfg, shutdown.New(time.Second, zerolog.Nop()))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "all 2 flights failed"), err.Error())
}

func TestLoadJobs_SQL(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "flights.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE samples (flight TEXT, ts INTEGER, field TEXT, num REAL, cat TEXT)`)
	require.NoError(t, err)
	for i, name := range []string{"N1", "N2", "N1"} {
		_, err = db.Exec(`INSERT INTO samples VALUES (?, ?, 'Distance', ?, NULL)`,
			name, t0.Add(time.Duration(i)*time.Second).UnixMicro(), float64(i))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	coordinator := shutdown.New(time.Second, zerolog.Nop())
	jobs, err := loadJobs(context.Background(), &config.SourceConfig{
		Kind:   "sql",
		Driver: "sqlite3",
		DSN:    dsn,
		Table:  "samples",
	}, coordinator)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "N1", jobs[0].Name)
	assert.Equal(t, "N2", jobs[1].Name)

	samples, err := jobs[0].Source.Samples(context.Background(), []models.FieldID{"Distance"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2}, samples["Distance"].Numbers)

	require.NoError(t, coordinator.Shutdown())
}

func TestLoadJobs_UnknownKind(t *testing.T) {
	_, err := loadJobs(context.Background(), &config.SourceConfig{Kind: "kafka"}, shutdown.New(time.Second, zerolog.Nop()))
	assert.Error(t, err)
}
