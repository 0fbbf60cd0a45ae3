package models

import (
	"math"
	"strconv"
	"time"
)

// ValueKind tags the payload held by a Value.
type ValueKind uint8

const (
	// NumberValue holds a float64.
	NumberValue ValueKind = iota
	// CategoryValue holds a string category.
	CategoryValue
	// TimeValue holds a timestamp.
	TimeValue
)

// Value is one cell of a resampled table.
type Value struct {
	kind  ValueKind
	num   float64
	str   string
	nanos int64
}

// Number wraps a float64.
func Number(v float64) Value { return Value{kind: NumberValue, num: v} }

// Category wraps a categorical value.
func Category(v string) Value { return Value{kind: CategoryValue, str: v} }

// Timestamp wraps a point in time.
func Timestamp(t time.Time) Value { return Value{kind: TimeValue, nanos: t.UnixNano()} }

// Kind returns the payload tag.
func (v Value) Kind() ValueKind { return v.kind }

// Float returns the numeric payload. Timestamps are returned as seconds
// since the Unix epoch; categories yield NaN.
func (v Value) Float() float64 {
	switch v.kind {
	case NumberValue:
		return v.num
	case TimeValue:
		return float64(v.nanos) / float64(time.Second)
	default:
		return math.NaN()
	}
}

// Str returns the categorical payload, or "" for other kinds.
func (v Value) Str() string {
	if v.kind == CategoryValue {
		return v.str
	}
	return ""
}

// Time returns the timestamp payload, or the zero time for other kinds.
func (v Value) Time() time.Time {
	if v.kind == TimeValue {
		return time.Unix(0, v.nanos).UTC()
	}
	return time.Time{}
}

// Equal reports whether both values carry the same kind and payload.
// NaN numbers are equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case NumberValue:
		if math.IsNaN(v.num) && math.IsNaN(o.num) {
			return true
		}
		return v.num == o.num
	case CategoryValue:
		return v.str == o.str
	default:
		return v.nanos == o.nanos
	}
}

// String formats the value for row exports: numbers in shortest form,
// timestamps as RFC 3339.
func (v Value) String() string {
	switch v.kind {
	case NumberValue:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case CategoryValue:
		return v.str
	default:
		return v.Time().Format(time.RFC3339Nano)
	}
}
