package export

import (
	"fmt"

	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Record converts table to the columnar layout read by the MessagePack
// source. The index is stored as Unix microseconds; timestamp cells are too.
// Missing cells are nil.
func Record(table *resample.Table, flight string) *models.ColumnarRecord {
	indexes := table.Indexes()
	columns := make(map[string][]interface{}, len(table.Fields())+1)

	times := make([]interface{}, len(indexes))
	for i, t := range indexes {
		times[i] = t.UnixMicro()
	}
	columns[models.TimeColumn] = times

	for _, c := range layout(table) {
		col := make([]interface{}, len(indexes))
		for i, t := range indexes {
			v, ok := table.Value(t, c.field)
			if !ok {
				continue
			}
			switch {
			case c.kind == models.CategoryValue:
				col[i] = v.String()
			case v.Kind() == models.TimeValue:
				col[i] = v.Time().UnixMicro()
			default:
				col[i] = v.Float()
			}
		}
		columns[c.field.Key()] = col
	}

	return &models.ColumnarRecord{
		Measurement: flight,
		Columns:     columns,
		TimeUnit:    "us",
	}
}

// EncodeMsgPack encodes table as a columnar MessagePack payload, optionally
// zstd-compressed.
func EncodeMsgPack(table *resample.Table, flight string, compress bool) ([]byte, error) {
	data, err := msgpack.Marshal(Record(table, flight))
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	if !compress {
		return data, nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}
