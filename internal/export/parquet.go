package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
)

// sharedArrowAllocator is used for every Parquet export.
// memory.GoAllocator is safe for concurrent use.
var sharedArrowAllocator = memory.NewGoAllocator()

// ParquetOptions configures the Parquet encoder.
type ParquetOptions struct {
	Compression     string // snappy, gzip, zstd or none
	UseDictionary   bool
	WriteStatistics bool
	DataPageVersion string // "1.0" or "2.0"
}

// ParquetWriter encodes resampled tables as single row group Parquet files.
type ParquetWriter struct {
	compression     compress.Compression
	useDictionary   bool
	writeStatistics bool
	dataPageVersion string
	logger          zerolog.Logger
}

// ParseCompression maps a codec name to its Parquet compression.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "snappy", "":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("%w: %s", ErrUnknownCompression, name)
	}
}

// NewParquetWriter creates a Parquet encoder.
func NewParquetWriter(opts ParquetOptions, logger zerolog.Logger) (*ParquetWriter, error) {
	comp, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	return &ParquetWriter{
		compression:     comp,
		useDictionary:   opts.UseDictionary,
		writeStatistics: opts.WriteStatistics,
		dataPageVersion: opts.DataPageVersion,
		logger:          logger.With().Str("component", "parquet-writer").Logger(),
	}, nil
}

// Schema returns the Arrow schema Write uses for table: identifier strings,
// the index as a microsecond timestamp, then one nullable column per
// group-by field in Rows order.
func Schema(table *resample.Table, indexName string, ids ...Identifier) *arrow.Schema {
	return schemaFor(layout(table), indexName, ids)
}

func schemaFor(cols []column, indexName string, ids []Identifier) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(ids)+1+len(cols))
	for _, id := range ids {
		fields = append(fields, arrow.Field{Name: id.Name, Type: arrow.BinaryTypes.String})
	}
	fields = append(fields, arrow.Field{Name: indexName, Type: arrow.FixedWidthTypes.Timestamp_us})
	for _, c := range cols {
		fields = append(fields, arrow.Field{Name: c.field.Key(), Type: arrowType(c.kind), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(kind models.ValueKind) arrow.DataType {
	switch kind {
	case models.NumberValue:
		return arrow.PrimitiveTypes.Float64
	case models.TimeValue:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// Write encodes table as Parquet bytes.
func (w *ParquetWriter) Write(table *resample.Table, indexName string, ids ...Identifier) ([]byte, error) {
	cols := layout(table)
	schema := schemaFor(cols, indexName, ids)
	indexes := table.Indexes()
	n := len(indexes)

	mem := sharedArrowAllocator
	builders := make([]array.Builder, 0, len(schema.Fields()))
	arrays := make([]arrow.Array, 0, len(schema.Fields()))

	// Release both builders and arrays
	defer func() {
		for _, builder := range builders {
			builder.Release()
		}
		for _, arr := range arrays {
			arr.Release()
		}
	}()

	for _, id := range ids {
		builder := array.NewStringBuilder(mem)
		builders = append(builders, builder)
		values := make([]string, n)
		for i := range values {
			values[i] = id.Value
		}
		builder.AppendValues(values, nil)
		arrays = append(arrays, builder.NewArray())
	}

	tsType := arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType)
	indexBuilder := array.NewTimestampBuilder(mem, tsType)
	builders = append(builders, indexBuilder)
	indexValues := make([]arrow.Timestamp, n)
	for i, t := range indexes {
		indexValues[i] = arrow.Timestamp(t.UnixMicro())
	}
	indexBuilder.AppendValues(indexValues, nil)
	arrays = append(arrays, indexBuilder.NewArray())

	for _, c := range cols {
		valid := make([]bool, n)
		cells := make([]models.Value, n)
		for i, t := range indexes {
			cells[i], valid[i] = table.Value(t, c.field)
		}

		switch c.kind {
		case models.NumberValue:
			builder := array.NewFloat64Builder(mem)
			builders = append(builders, builder)
			values := make([]float64, n)
			for i, v := range cells {
				if valid[i] {
					values[i] = v.Float()
				}
			}
			builder.AppendValues(values, valid)
			arrays = append(arrays, builder.NewArray())

		case models.TimeValue:
			builder := array.NewTimestampBuilder(mem, tsType)
			builders = append(builders, builder)
			values := make([]arrow.Timestamp, n)
			for i, v := range cells {
				if valid[i] {
					values[i] = arrow.Timestamp(v.Time().UnixMicro())
				}
			}
			builder.AppendValues(values, valid)
			arrays = append(arrays, builder.NewArray())

		default:
			builder := array.NewStringBuilder(mem)
			builders = append(builders, builder)
			values := make([]string, n)
			for i, v := range cells {
				if valid[i] {
					values[i] = v.String()
				}
			}
			builder.AppendValues(values, valid)
			arrays = append(arrays, builder.NewArray())
		}
	}

	return w.writeRecordToParquet(schema, arrays, n)
}

// writeRecordToParquet writes Arrow arrays to Parquet bytes
func (w *ParquetWriter) writeRecordToParquet(schema *arrow.Schema, arrays []arrow.Array, rows int) ([]byte, error) {
	start := time.Now()

	record := array.NewRecord(schema, arrays, int64(rows))
	defer record.Release()

	var buf bytes.Buffer

	writerOpts := []parquet.WriterProperty{
		parquet.WithCompression(w.compression),
		parquet.WithDictionaryDefault(w.useDictionary),
		parquet.WithStats(w.writeStatistics),
	}
	if w.dataPageVersion == "2.0" {
		writerOpts = append(writerOpts, parquet.WithDataPageVersion(parquet.DataPageV2))
	}
	writerProps := parquet.NewWriterProperties(writerOpts...)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, &buf, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	w.logger.Debug().
		Int("columns", len(schema.Fields())).
		Int("rows", rows).
		Int("size", buf.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Wrote Parquet file")

	return buf.Bytes(), nil
}
