package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/basekick-labs/flightstats/internal/config"
	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/internal/storage"
	"github.com/rs/zerolog"
)

// Format selects the file encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatMsgPack Format = "msgpack"
)

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatParquet, FormatMsgPack:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
	}
}

// Extension returns the file extension written for f.
func (f Format) Extension(zstdCompressed bool) string {
	if f == FormatMsgPack && zstdCompressed {
		return ".msgpack.zst"
	}
	return "." + string(f)
}

// Exporter writes one file per flight table to a storage backend.
type Exporter struct {
	format    Format
	backend   storage.Backend
	indexName string
	zstd      bool
	parquet   *ParquetWriter
	logger    zerolog.Logger
}

// New creates an exporter from the export configuration. Files are stored
// through backend.
func New(cfg *config.ExportConfig, backend storage.Backend, logger zerolog.Logger) (*Exporter, error) {
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	pw, err := NewParquetWriter(ParquetOptions{
		Compression:     cfg.Compression,
		UseDictionary:   cfg.UseDictionary,
		WriteStatistics: cfg.WriteStatistics,
		DataPageVersion: cfg.DataPageVersion,
	}, logger)
	if err != nil {
		return nil, err
	}
	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "time"
	}
	return &Exporter{
		format:    format,
		backend:   backend,
		indexName: indexName,
		zstd:      cfg.MsgPackZstd,
		parquet:   pw,
		logger:    logger.With().Str("component", "exporter").Logger(),
	}, nil
}

// Encode returns table in the configured format. ids are prepended as
// constant columns for CSV and Parquet; MessagePack carries the flight in
// its measurement field instead.
func (e *Exporter) Encode(table *resample.Table, flight string, ids ...Identifier) ([]byte, error) {
	switch e.format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, Rows(table, e.indexName, ids...)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatParquet:
		return e.parquet.Write(table, e.indexName, ids...)
	case FormatMsgPack:
		return EncodeMsgPack(table, flight, e.zstd)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, e.format)
	}
}

// WriteFile encodes table and stores it as <flight>[_suffix].<ext>,
// returning the storage path. Empty tables are skipped and yield "".
func (e *Exporter) WriteFile(ctx context.Context, flight, suffix string, table *resample.Table) (string, error) {
	if table.Len() == 0 {
		e.logger.Debug().Str("flight", flight).Str("table", suffix).Msg("Skipping empty table")
		return "", nil
	}

	data, err := e.Encode(table, flight, Identifier{Name: "flight", Value: flight})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", flight, err)
	}

	name := FileName(flight)
	if suffix != "" {
		name += "_" + suffix
	}
	path := name + e.format.Extension(e.zstd)
	if err := e.backend.Write(ctx, path, data); err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}

	metrics.Get().IncExportsWritten()
	e.logger.Info().
		Str("flight", flight).
		Str("path", path).
		Int("rows", table.Len()).
		Int("bytes", len(data)).
		Msg("Exported table")
	return path, nil
}

// FileName maps a flight name to a safe file name: path separators and
// other characters outside letters, digits, '-', '_' and '.' become '_'.
func FileName(flight string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, flight)
	name = strings.Trim(name, ".")
	if name == "" {
		return "flight"
	}
	return name
}
