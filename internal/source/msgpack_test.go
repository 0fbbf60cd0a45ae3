package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basekick-labs/flightstats/pkg/models"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return data
}

func flightPayload(name string, start time.Time) map[string]interface{} {
	s := start.Unix()
	return map[string]interface{}{
		"m": name,
		"columns": map[string]interface{}{
			"time":     []interface{}{s, s + 1, s + 2},
			"AltMSL":   []interface{}{1200.5, nil, 1210},
			"AfcsOn":   []interface{}{"0", "1", "1"},
			"Distance": []interface{}{nil, nil, nil},
		},
	}
}

func samples(t *testing.T, m *Memory, fields ...models.FieldID) map[models.FieldID]models.Series {
	t.Helper()
	got, err := m.Samples(context.Background(), fields)
	require.NoError(t, err)
	return got
}

func TestMsgPackDecode_Columnar(t *testing.T) {
	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	flights, err := d.Decode(encode(t, flightPayload("N12345", t0)))
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "N12345", flights[0].Name())

	got := samples(t, flights[0], "AltMSL", "AfcsOn", "Distance")
	require.Len(t, got, 2, "all-nil column is absent")

	alt := got["AltMSL"]
	assert.Equal(t, models.Numeric, alt.Kind)
	assert.Equal(t, []float64{1200.5, 1210}, alt.Numbers)
	assert.Equal(t, []time.Time{t0, t0.Add(2 * time.Second)}, alt.Indexes)

	afcs := got["AfcsOn"]
	assert.Equal(t, models.Categorical, afcs.Kind)
	assert.Equal(t, []string{"0", "1", "1"}, afcs.Categories)
}

func TestMsgPackDecode_Compressed(t *testing.T) {
	plain := encode(t, flightPayload("N12345", t0))

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())

	tests := []struct {
		name  string
		data  []byte
		codec Codec
	}{
		{"plain", plain, CodecNone},
		{"gzip", gz.Bytes(), CodecGzip},
		{"zstd", zst, CodecZstd},
	}
	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.codec, DetectCodec(tt.data))
			flights, err := d.Decode(tt.data)
			require.NoError(t, err)
			require.Len(t, flights, 1)
			assert.Len(t, samples(t, flights[0], "AltMSL")["AltMSL"].Numbers, 2)
		})
	}
}

func TestMsgPackDecode_BatchMergesFlights(t *testing.T) {
	payload := map[string]interface{}{
		"batch": []interface{}{
			flightPayload("A", t0.Add(10*time.Second)),
			flightPayload("B", t0),
			flightPayload("A", t0),
		},
	}
	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	flights, err := d.Decode(encode(t, payload))
	require.NoError(t, err)
	require.Len(t, flights, 2)
	assert.Equal(t, "A", flights[0].Name())
	assert.Equal(t, "B", flights[1].Name())

	alt := samples(t, flights[0], "AltMSL")["AltMSL"]
	require.Len(t, alt.Indexes, 4)
	assert.True(t, alt.IsSorted())
	assert.Equal(t, t0, alt.Indexes[0])
}

func TestMsgPackDecode_TimeUnits(t *testing.T) {
	ms := t0.UnixMilli()
	tests := []struct {
		name    string
		times   []interface{}
		unit    string
		wantSec time.Duration
	}{
		{"inferred milliseconds", []interface{}{ms, ms + 250}, "", 250 * time.Millisecond},
		{"inferred fractional seconds", []interface{}{float64(t0.Unix()), float64(t0.Unix()) + 0.5}, "", 500 * time.Millisecond},
		{"explicit microseconds", []interface{}{t0.UnixMicro(), t0.UnixMicro() + 10}, "us", 10 * time.Microsecond},
		{"exact unsigned nanoseconds", []interface{}{uint64(t0.UnixNano()), uint64(t0.UnixNano()) + 1}, "ns", time.Nanosecond},
	}
	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]interface{}{
				"m":       "N1",
				"columns": map[string]interface{}{"time": tt.times, "AltMSL": []interface{}{1.0, 2.0}},
			}
			if tt.unit != "" {
				payload["_time_unit"] = tt.unit
			}
			flights, err := d.Decode(encode(t, payload))
			require.NoError(t, err)
			idx := samples(t, flights[0], "AltMSL")["AltMSL"].Indexes
			require.Len(t, idx, 2)
			assert.True(t, t0.Equal(idx[0]), "got %s", idx[0])
			assert.Equal(t, tt.wantSec, idx[1].Sub(idx[0]))
		})
	}
}

func TestMsgPackDecode_Errors(t *testing.T) {
	s := t0.Unix()
	tests := []struct {
		name    string
		payload interface{}
	}{
		{"not a map", "hello"},
		{"missing flight", map[string]interface{}{"columns": map[string]interface{}{"time": []interface{}{s}}}},
		{"missing columns", map[string]interface{}{"m": "x"}},
		{"missing time", map[string]interface{}{"m": "x", "columns": map[string]interface{}{"AltMSL": []interface{}{1.0}}}},
		{"length mismatch", map[string]interface{}{"m": "x", "columns": map[string]interface{}{
			"time": []interface{}{s, s + 1}, "AltMSL": []interface{}{1.0}}}},
		{"mixed column", map[string]interface{}{"m": "x", "columns": map[string]interface{}{
			"time": []interface{}{s, s + 1}, "AltMSL": []interface{}{1.0, "high"}}}},
	}
	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(encode(t, tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestMsgPackReadPath_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.msgpack"), encode(t, flightPayload("N1", t0)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp"), encode(t, flightPayload("N1", t0.Add(time.Minute))), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.mp"), encode(t, flightPayload("N2", t0)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	d := NewMsgPackDecoder(zerolog.Nop(), 0)
	flights, err := d.ReadPath(dir)
	require.NoError(t, err)
	require.Len(t, flights, 2)
	assert.Len(t, samples(t, flights[0], "AfcsOn")["AfcsOn"].Categories, 6)

	single, err := d.ReadPath(filepath.Join(dir, "c.mp"))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "N2", single[0].Name())

	_, err = d.ReadPath(filepath.Join(dir, "missing.mp"))
	assert.Error(t, err)
}

func TestMsgPackDecode_PayloadLimit(t *testing.T) {
	plain := encode(t, flightPayload("N12345", t0))
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = NewMsgPackDecoder(zerolog.Nop(), 16).Decode(gz.Bytes())
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
