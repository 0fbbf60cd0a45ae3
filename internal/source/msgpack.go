package source

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/flightstats/internal/metrics"
	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackDecoder reads flights from columnar MessagePack payloads:
//
//	{m: "N12345-2022-11-19", columns: {time: [...], AltMSL: [...], AfcsOn: [...]}}
//
// A payload may also be an array of such maps, or a map with a "batch" array.
// Records sharing a flight name are merged. Nil cells are gaps.
type MsgPackDecoder struct {
	maxPayloadSize int64
	logger         zerolog.Logger
}

// NewMsgPackDecoder creates a new MessagePack decoder. maxPayloadSize bounds
// the decompressed size of a payload; zero selects DefaultMaxPayloadSize.
func NewMsgPackDecoder(logger zerolog.Logger, maxPayloadSize int64) *MsgPackDecoder {
	return &MsgPackDecoder{
		maxPayloadSize: maxPayloadSize,
		logger:         logger.With().Str("component", "msgpack-source").Logger(),
	}
}

// ReadFile decodes the flights stored in a (possibly compressed) file.
func (d *MsgPackDecoder) ReadFile(path string) ([]*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.Get().IncSourceErrors()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	flights, err := d.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return flights, nil
}

// ReadPath decodes a file, or every MessagePack file of a directory in name
// order. Flights found in several files are merged.
func (d *MsgPackDecoder) ReadPath(path string) ([]*Memory, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return d.ReadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", path, err)
	}
	var flights []*Memory
	byName := make(map[string]*Memory)
	for _, e := range entries {
		if e.IsDir() || !isMsgPackFile(e.Name()) {
			continue
		}
		found, err := d.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			prev, ok := byName[f.Name()]
			if !ok {
				byName[f.Name()] = f
				flights = append(flights, f)
				continue
			}
			for field, series := range f.series {
				if err := merge(prev, field, series); err != nil {
					return nil, fmt.Errorf("flight %s field %s: %w", f.Name(), field, err)
				}
			}
		}
	}
	return flights, nil
}

func isMsgPackFile(name string) bool {
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".zst")
	return strings.HasSuffix(name, ".msgpack") || strings.HasSuffix(name, ".mp")
}

// Decode decodes the flights of one payload, in order of first appearance.
func (d *MsgPackDecoder) Decode(data []byte) ([]*Memory, error) {
	m := metrics.Get()
	m.IncSourceReads()
	m.IncSourceBytes(int64(len(data)))

	plain, codec, err := Decompress(data, d.maxPayloadSize)
	if err != nil {
		m.IncSourceErrors()
		return nil, err
	}

	var raw interface{}
	if err := msgpack.Unmarshal(plain, &raw); err != nil {
		m.IncSourceErrors()
		return nil, fmt.Errorf("failed to unmarshal msgpack: %w", err)
	}

	var items []interface{}
	switch payload := raw.(type) {
	case map[string]interface{}:
		if batch, ok := payload["batch"].([]interface{}); ok {
			items = batch
		} else {
			items = []interface{}{payload}
		}
	case []interface{}:
		items = payload
	default:
		m.IncSourceErrors()
		return nil, fmt.Errorf("unsupported msgpack payload type: %T", raw)
	}

	var flights []*Memory
	byName := make(map[string]*Memory)
	for i, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			d.logger.Warn().Int("item", i).Str("type", fmt.Sprintf("%T", item)).Msg("Skipping unknown payload item type")
			continue
		}
		record, err := mapToRecord(itemMap)
		if err != nil {
			m.IncSourceErrors()
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		flight, ok := byName[record.Measurement]
		if !ok {
			flight = NewMemory(record.Measurement)
			byName[record.Measurement] = flight
			flights = append(flights, flight)
		}
		if err := d.decodeColumnar(flight, record); err != nil {
			m.IncSourceErrors()
			return nil, fmt.Errorf("flight %s: %w", record.Measurement, err)
		}
	}

	d.logger.Debug().
		Str("codec", string(codec)).
		Int("bytes", len(data)).
		Int("flights", len(flights)).
		Msg("Decoded msgpack payload")
	return flights, nil
}

// mapToRecord converts a generic map to a ColumnarRecord.
func mapToRecord(m map[string]interface{}) (*models.ColumnarRecord, error) {
	record := &models.ColumnarRecord{}

	switch v := m["m"].(type) {
	case string:
		record.Measurement = v
	case nil:
		return nil, fmt.Errorf("missing required field 'm' (flight)")
	default:
		record.Measurement = fmt.Sprintf("%v", v)
	}

	if unit, ok := m["_time_unit"].(string); ok {
		record.TimeUnit = unit
	}

	cols, ok := m["columns"].(map[string]interface{})
	if !ok || len(cols) == 0 {
		return nil, fmt.Errorf("columnar format requires non-empty 'columns' dict")
	}
	record.Columns = make(map[string][]interface{}, len(cols))
	for k, v := range cols {
		arr, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("column '%s' is not an array", k)
		}
		record.Columns[k] = arr
	}
	return record, nil
}

// decodeColumnar turns the columns of record into series and merges them
// into flight.
func (d *MsgPackDecoder) decodeColumnar(flight *Memory, record *models.ColumnarRecord) error {
	timeCol, ok := record.Columns[models.TimeColumn]
	if !ok || len(timeCol) == 0 {
		return fmt.Errorf("missing '%s' column", models.TimeColumn)
	}
	for name, col := range record.Columns {
		if len(col) != len(timeCol) {
			return fmt.Errorf("columnar format: array length mismatch (expected %d, got %d for '%s')",
				len(timeCol), len(col), name)
		}
	}

	times, err := decodeTimes(timeCol, record.TimeUnit)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(record.Columns))
	for name := range record.Columns {
		if name != models.TimeColumn {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		series, ok, err := columnSeries(times, record.Columns[name])
		if err != nil {
			return fmt.Errorf("column '%s': %w", name, err)
		}
		if !ok {
			d.logger.Debug().Str("flight", flight.Name()).Str("column", name).Msg("Skipping empty column")
			continue
		}
		field := models.FieldID(name)
		if err := merge(flight, field, series); err != nil {
			return fmt.Errorf("column '%s': %w", name, err)
		}
	}
	return nil
}

func merge(flight *Memory, field models.FieldID, series models.Series) error {
	flight.mu.Lock()
	defer flight.mu.Unlock()

	prev, ok := flight.series[field]
	if !ok {
		flight.series[field] = series
		return nil
	}
	if prev.Kind != series.Kind {
		return ErrMixedColumn
	}
	prev.Indexes = append(slices.Clip(prev.Indexes), series.Indexes...)
	prev.Numbers = append(slices.Clip(prev.Numbers), series.Numbers...)
	prev.Categories = append(slices.Clip(prev.Categories), series.Categories...)
	flight.series[field] = prev.Sorted()
	return nil
}

// columnSeries builds a series from one column. Nil cells are skipped; ok is
// false when every cell is nil.
func columnSeries(times []time.Time, col []interface{}) (models.Series, bool, error) {
	var (
		indexes    []time.Time
		numbers    []float64
		categories []string
	)
	for i, v := range col {
		if v == nil {
			continue
		}
		if f, ok := toFloat64(v); ok {
			numbers = append(numbers, f)
		} else {
			switch c := v.(type) {
			case string:
				categories = append(categories, c)
			case bool:
				categories = append(categories, strconv.FormatBool(c))
			default:
				return models.Series{}, false, fmt.Errorf("unsupported value type at index %d: %T", i, v)
			}
		}
		indexes = append(indexes, times[i])
	}

	switch {
	case len(indexes) == 0:
		return models.Series{}, false, nil
	case len(numbers) > 0 && len(categories) > 0:
		return models.Series{}, false, ErrMixedColumn
	case len(categories) > 0:
		return models.NewCategoricalSeries(indexes, categories), true, nil
	default:
		return models.NewNumericSeries(indexes, numbers), true, nil
	}
}

// decodeTimes converts the time column. Without an explicit unit the unit is
// inferred from the magnitude of the first value: seconds below 1e10,
// milliseconds below 1e13, microseconds below 1e16, nanoseconds otherwise.
func decodeTimes(col []interface{}, unit string) ([]time.Time, error) {
	first, ok := toFloat64(col[0])
	if !ok {
		return nil, fmt.Errorf("invalid timestamp type in columnar format: %T", col[0])
	}
	if unit == "" {
		unit = inferTimeUnit(first)
	}
	var scale float64
	switch unit {
	case "s":
		scale = 1e9
	case "ms":
		scale = 1e6
	case "us":
		scale = 1e3
	case "ns":
		scale = 1
	default:
		return nil, fmt.Errorf("unknown time unit %q", unit)
	}

	out := make([]time.Time, len(col))
	for i, v := range col {
		switch n := v.(type) {
		case int64:
			out[i] = time.Unix(0, n*int64(scale)).UTC()
			continue
		case uint64:
			if n <= math.MaxInt64 {
				out[i] = time.Unix(0, int64(n)*int64(scale)).UTC()
				continue
			}
		}
		f, ok := toFloat64(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("invalid timestamp at index %d: %v", i, v)
		}
		out[i] = time.Unix(0, int64(math.Round(f*scale))).UTC()
	}
	return out, nil
}

func inferTimeUnit(v float64) string {
	switch a := math.Abs(v); {
	case a < 1e10:
		return "s"
	case a < 1e13:
		return "ms"
	case a < 1e16:
		return "us"
	default:
		return "ns"
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
