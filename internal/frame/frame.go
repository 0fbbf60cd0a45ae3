// Package frame provides a time-indexed table with a column set that grows
// as values are written.
package frame

import (
	"iter"
	"slices"
	"time"
)

// Equaler is implemented by cell values. Equal decides whether a repeated
// write is a harmless re-append or a conflict.
type Equaler[V any] interface {
	Equal(V) bool
}

// Cell is one (field, value) pair of a row.
type Cell[F comparable, V any] struct {
	Field F
	Value V
}

// Point is one (index, value) entry of a column.
type Point[V any] struct {
	Index time.Time
	Value V
}

// Frame maps strictly ordered, unique time indexes to sparse rows of
// field -> value. It is not safe for concurrent writes.
type Frame[F comparable, V Equaler[V]] struct {
	indexes []time.Time
	fields  []F
	columns map[F]map[int64]V
}

// New returns an empty frame.
func New[F comparable, V Equaler[V]]() *Frame[F, V] {
	return &Frame[F, V]{columns: make(map[F]map[int64]V)}
}

func key(t time.Time) int64 { return t.UnixNano() }

// Append writes v into the cell (index, field). Writing the value already
// held by the cell is a no-op; writing a different one fails with a
// *ConflictingWriteError and leaves the frame unchanged.
func (f *Frame[F, V]) Append(index time.Time, field F, v V) error {
	if err := f.check(index, field, v); err != nil {
		return err
	}
	f.set(index, field, v)
	return nil
}

// AppendRow writes every cell of a row at index. Either all cells are written
// or, on the first conflict, none are.
func (f *Frame[F, V]) AppendRow(index time.Time, cells []Cell[F, V]) error {
	for i, c := range cells {
		if err := f.check(index, c.Field, c.Value); err != nil {
			return err
		}
		for _, prev := range cells[:i] {
			if prev.Field == c.Field && !prev.Value.Equal(c.Value) {
				return &ConflictingWriteError[F, V]{Index: index, Field: c.Field, Existing: prev.Value, New: c.Value}
			}
		}
	}
	for _, c := range cells {
		f.set(index, c.Field, c.Value)
	}
	return nil
}

func (f *Frame[F, V]) check(index time.Time, field F, v V) error {
	col, ok := f.columns[field]
	if !ok {
		return nil
	}
	existing, ok := col[key(index)]
	if !ok || existing.Equal(v) {
		return nil
	}
	return &ConflictingWriteError[F, V]{Index: index, Field: field, Existing: existing, New: v}
}

func (f *Frame[F, V]) set(index time.Time, field F, v V) {
	col, ok := f.columns[field]
	if !ok {
		col = make(map[int64]V)
		f.columns[field] = col
		f.fields = append(f.fields, field)
	}
	k := key(index)
	if _, ok := col[k]; ok {
		return
	}
	col[k] = v
	f.insertIndex(index)
}

func (f *Frame[F, V]) insertIndex(index time.Time) {
	i, found := f.search(index)
	if found {
		return
	}
	f.indexes = slices.Insert(f.indexes, i, index)
}

func (f *Frame[F, V]) search(index time.Time) (int, bool) {
	return slices.BinarySearchFunc(f.indexes, index, time.Time.Compare)
}

// Len returns the number of rows.
func (f *Frame[F, V]) Len() int { return len(f.indexes) }

// Indexes returns the row indexes in increasing order.
func (f *Frame[F, V]) Indexes() []time.Time { return slices.Clone(f.indexes) }

// Fields returns the columns in the order they were first written.
func (f *Frame[F, V]) Fields() []F { return slices.Clone(f.fields) }

// HasField reports whether any cell of field has been written.
func (f *Frame[F, V]) HasField(field F) bool {
	_, ok := f.columns[field]
	return ok
}

// Value returns the cell at (index, field).
func (f *Frame[F, V]) Value(index time.Time, field F) (V, bool) {
	v, ok := f.columns[field][key(index)]
	return v, ok
}

// Row returns the cells at index in column order. The result is empty when
// the index is absent.
func (f *Frame[F, V]) Row(index time.Time) []Cell[F, V] {
	k := key(index)
	var row []Cell[F, V]
	for _, field := range f.fields {
		if v, ok := f.columns[field][k]; ok {
			row = append(row, Cell[F, V]{Field: field, Value: v})
		}
	}
	return row
}

// Column returns the cells of field ordered by index.
func (f *Frame[F, V]) Column(field F) []Point[V] {
	col, ok := f.columns[field]
	if !ok {
		return nil
	}
	out := make([]Point[V], 0, len(col))
	for _, idx := range f.indexes {
		if v, ok := col[key(idx)]; ok {
			out = append(out, Point[V]{Index: idx, Value: v})
		}
	}
	return out
}

// All iterates rows in index order.
func (f *Frame[F, V]) All() iter.Seq2[time.Time, []Cell[F, V]] {
	return func(yield func(time.Time, []Cell[F, V]) bool) {
		for _, idx := range f.indexes {
			if !yield(idx, f.Row(idx)) {
				return
			}
		}
	}
}

// First returns the earliest cell of field.
func (f *Frame[F, V]) First(field F) (Point[V], bool) {
	col := f.columns[field]
	for _, idx := range f.indexes {
		if v, ok := col[key(idx)]; ok {
			return Point[V]{Index: idx, Value: v}, true
		}
	}
	return Point[V]{}, false
}

// Last returns the latest cell of field.
func (f *Frame[F, V]) Last(field F) (Point[V], bool) {
	col := f.columns[field]
	for i := len(f.indexes) - 1; i >= 0; i-- {
		if v, ok := col[key(f.indexes[i])]; ok {
			return Point[V]{Index: f.indexes[i], Value: v}, true
		}
	}
	return Point[V]{}, false
}

// Slice returns a new frame holding the rows in [start, end). Columns keep
// their order; columns with no cell in range are dropped.
func (f *Frame[F, V]) Slice(start, end time.Time) *Frame[F, V] {
	out := New[F, V]()
	lo, _ := f.search(start)
	hi, _ := f.search(end)
	if hi < lo {
		return out
	}
	for _, field := range f.fields {
		col := f.columns[field]
		for _, idx := range f.indexes[lo:hi] {
			if v, ok := col[key(idx)]; ok {
				out.set(idx, field, v)
			}
		}
	}
	return out
}
