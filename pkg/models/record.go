package models

// ColumnarRecord is the columnar MessagePack layout used for flight telemetry
// and for resampled tables. Columns maps a column name to its values; the
// "time" column holds the index.
type ColumnarRecord struct {
	Measurement string                   `msgpack:"m" json:"measurement"`
	Columns     map[string][]interface{} `msgpack:"columns" json:"columns"`
	TimeUnit    string                   `msgpack:"_time_unit,omitempty" json:"_time_unit,omitempty"`
}

// TimeColumn is the reserved index column name in a ColumnarRecord.
const TimeColumn = "time"
