package source

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/basekick-labs/flightstats/pkg/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSampleDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE samples (flight TEXT, ts INTEGER, field TEXT, num REAL, cat TEXT)`)
	require.NoError(t, err)

	rows := []struct {
		flight string
		offset time.Duration
		field  string
		num    interface{}
		cat    interface{}
	}{
		{"N1", 0, "AltMSL", 1200.0, nil},
		{"N1", 2 * time.Second, "AltMSL", 1220.0, nil},
		{"N1", time.Second, "AltMSL", 1210.0, nil},
		{"N1", 3 * time.Second, "AltMSL", nil, nil},
		{"N1", 0, "AfcsOn", nil, "0"},
		{"N1", time.Second, "AfcsOn", nil, "1"},
		{"N1", 0, "Mixed", 1.0, nil},
		{"N1", time.Second, "Mixed", nil, "a"},
		{"N2", 0, "AltMSL", 800.0, nil},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO samples VALUES (?, ?, ?, ?, ?)`,
			r.flight, t0.Add(r.offset).UnixMicro(), r.field, r.num, r.cat)
		require.NoError(t, err)
	}
	return db
}

func TestSQL_Flights(t *testing.T) {
	src, err := NewSQL(newSampleDB(t), "sqlite3", "samples", zerolog.Nop())
	require.NoError(t, err)

	flights, err := src.Flights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"N1", "N2"}, flights)
}

func TestSQL_Samples(t *testing.T) {
	src, err := NewSQL(newSampleDB(t), "sqlite3", "samples", zerolog.Nop())
	require.NoError(t, err)

	flight, err := src.Lookup(context.Background(), "N1")
	require.NoError(t, err)
	assert.Equal(t, "N1", flight.Name())

	got, err := flight.Samples(context.Background(), []models.FieldID{"AltMSL", "AfcsOn", "Missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	alt := got["AltMSL"]
	assert.Equal(t, models.Numeric, alt.Kind)
	assert.Equal(t, []float64{1200, 1210, 1220}, alt.Numbers)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second)}, alt.Indexes)

	afcs := got["AfcsOn"]
	assert.Equal(t, models.Categorical, afcs.Kind)
	assert.Equal(t, []string{"0", "1"}, afcs.Categories)
	require.NoError(t, afcs.Validate())
}

func TestSQL_MixedField(t *testing.T) {
	src, err := NewSQL(newSampleDB(t), "sqlite3", "samples", zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Flight("N1").Samples(context.Background(), []models.FieldID{"Mixed"})
	assert.ErrorIs(t, err, ErrMixedColumn)
}

func TestSQL_UnknownFlight(t *testing.T) {
	src, err := NewSQL(newSampleDB(t), "sqlite3", "samples", zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), "N999")
	assert.ErrorIs(t, err, ErrUnknownFlight)

	got, err := src.Flight("N999").Samples(context.Background(), []models.FieldID{"AltMSL"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewSQL_RejectsBadTableName(t *testing.T) {
	for _, name := range []string{"", "samples; DROP TABLE x", "1abc", "a.b.c"} {
		_, err := NewSQL(nil, "sqlite3", name, zerolog.Nop())
		assert.Error(t, err, name)
	}
	_, err := NewSQL(nil, "pgx", "telemetry.samples", zerolog.Nop())
	assert.NoError(t, err)
}

func TestSQL_Placeholders(t *testing.T) {
	pg := &SQL{driver: "pgx"}
	assert.Equal(t, "$3", pg.placeholder(3))
	lite := &SQL{driver: "sqlite3"}
	assert.Equal(t, "?", lite.placeholder(3))
}

func TestConfigureDB(t *testing.T) {
	db, err := OpenDB(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, ConfigureDB(context.Background(), db, "sqlite3", DBOptions{MaxOpenConns: 3, MemoryLimit: "ignored", Threads: 2}))
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)

	err = ConfigureDB(context.Background(), db, "duckdb", DBOptions{MemoryLimit: "1GB'; DROP TABLE samples; --"})
	assert.ErrorContains(t, err, "invalid duckdb memory limit")
}

func TestMemoryLimitPattern(t *testing.T) {
	for _, ok := range []string{"4GB", "512MB", "1.5GB", "2GiB", "100", "1 GB"} {
		assert.True(t, memoryLimitPattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "GB", "4XB", "4GB'", "-1GB"} {
		assert.False(t, memoryLimitPattern.MatchString(bad), bad)
	}
}
