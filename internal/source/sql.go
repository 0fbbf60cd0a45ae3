package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
)

var (
	identifierPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	memoryLimitPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?\s*([KMGT]i?B|B)?$`)
)

// SQL reads samples from a long-format table:
//
//	flight TEXT, ts BIGINT (unix microseconds), field TEXT, num DOUBLE, cat TEXT
//
// A row with num set is a numeric sample, a row with cat set a categorical
// one; rows with neither are gaps.
type SQL struct {
	db     *sql.DB
	table  string
	driver string
	logger zerolog.Logger
}

// OpenDB opens and pings a database through one of the registered drivers
// (sqlite3, duckdb, pgx).
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}

// DBOptions tunes the connection pool and, for DuckDB, the engine.
type DBOptions struct {
	MaxOpenConns int
	MemoryLimit  string // DuckDB memory_limit, e.g. "4GB"
	Threads      int    // DuckDB threads
}

// ConfigureDB applies opts to db. DuckDB settings are ignored for other
// drivers.
func ConfigureDB(ctx context.Context, db *sql.DB, driver string, opts DBOptions) error {
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(max(opts.MaxOpenConns/2, 1))
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if driver != "duckdb" {
		return nil
	}
	if opts.MemoryLimit != "" {
		if !memoryLimitPattern.MatchString(opts.MemoryLimit) {
			return fmt.Errorf("invalid duckdb memory limit %q", opts.MemoryLimit)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", opts.MemoryLimit)); err != nil {
			return fmt.Errorf("failed to set memory_limit: %w", err)
		}
	}
	if opts.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", opts.Threads)); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}
	return nil
}

// NewSQL creates a source over table. driver selects the placeholder syntax.
func NewSQL(db *sql.DB, driver, table string, logger zerolog.Logger) (*SQL, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQL{
		db:     db,
		table:  table,
		driver: driver,
		logger: logger.With().Str("component", "sql-source").Str("table", table).Logger(),
	}, nil
}

func (s *SQL) placeholder(n int) string {
	if s.driver == "pgx" || s.driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Flights lists the flights present in the table.
func (s *SQL) Flights(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT flight FROM "+s.table+" ORDER BY flight")
	if err != nil {
		metrics.Get().IncSourceErrors()
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	var flights []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		flights = append(flights, name)
	}
	return flights, rows.Err()
}

// Flight returns a source bound to one flight.
func (s *SQL) Flight(name string) *SQLFlight {
	return &SQLFlight{src: s, name: name}
}

// SQLFlight reads the samples of one flight.
type SQLFlight struct {
	src  *SQL
	name string
}

// Name returns the flight name.
func (f *SQLFlight) Name() string { return f.name }

// Samples queries the requested fields. Fields without rows are left out.
func (f *SQLFlight) Samples(ctx context.Context, fields []models.FieldID) (map[models.FieldID]models.Series, error) {
	out := make(map[models.FieldID]models.Series, len(fields))
	if len(fields) == 0 {
		return out, nil
	}

	s := f.src
	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, f.name)
	marks := make([]string, len(fields))
	for i, field := range fields {
		args = append(args, string(field))
		marks[i] = s.placeholder(i + 2)
	}
	query := fmt.Sprintf(
		"SELECT field, ts, num, cat FROM %s WHERE flight = %s AND field IN (%s) ORDER BY field, ts",
		s.table, s.placeholder(1), strings.Join(marks, ", "))

	start := time.Now()
	m := metrics.Get()
	m.IncSourceReads()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		m.IncSourceErrors()
		return nil, fmt.Errorf("query samples of %s: %w", f.name, err)
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var (
			field string
			ts    int64
			num   sql.NullFloat64
			cat   sql.NullString
		)
		if err := rows.Scan(&field, &ts, &num, &cat); err != nil {
			m.IncSourceErrors()
			return nil, fmt.Errorf("scan sample of %s: %w", f.name, err)
		}
		if !num.Valid && !cat.Valid {
			continue
		}

		id := models.FieldID(field)
		series, seen := out[id]
		if !seen {
			series.Kind = models.Numeric
			if !num.Valid {
				series.Kind = models.Categorical
			}
		}
		index := time.UnixMicro(ts).UTC()
		switch {
		case series.Kind == models.Numeric && num.Valid:
			series.Numbers = append(series.Numbers, num.Float64)
		case series.Kind == models.Categorical && cat.Valid && !num.Valid:
			series.Categories = append(series.Categories, cat.String)
		default:
			m.IncSourceErrors()
			return nil, fmt.Errorf("field %s of %s: %w", field, f.name, ErrMixedColumn)
		}
		series.Indexes = append(series.Indexes, index)
		out[id] = series
		count++
	}
	if err := rows.Err(); err != nil {
		m.IncSourceErrors()
		return nil, fmt.Errorf("read samples of %s: %w", f.name, err)
	}

	s.logger.Debug().
		Str("flight", f.name).
		Int("fields", len(out)).
		Int("samples", count).
		Dur("elapsed", time.Since(start)).
		Msg("Loaded samples")
	return out, nil
}

// Lookup returns the flight called name, or ErrUnknownFlight when the table
// holds no row for it.
func (s *SQL) Lookup(ctx context.Context, name string) (*SQLFlight, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+s.table+" WHERE flight = "+s.placeholder(1)+" LIMIT 1", name).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlight, name)
	case err != nil:
		metrics.Get().IncSourceErrors()
		return nil, fmt.Errorf("look up flight %s: %w", name, err)
	}
	return s.Flight(name), nil
}
