// Package export encodes resampled tables as CSV, Parquet or columnar
// MessagePack.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/basekick-labs/flightstats/internal/frame"
	"github.com/basekick-labs/flightstats/internal/resample"
	"github.com/basekick-labs/flightstats/pkg/models"
)

// Identifier is a constant column prepended to every exported row, such as
// the flight name or the aircraft registration.
type Identifier struct {
	Name  string
	Value string
}

// ByRows is a table flattened to a header and string rows.
type ByRows struct {
	Header []string
	Rows   [][]string
}

// column is one table column with the value kind it is exported as. Mixed
// columns fall back to strings.
type column struct {
	field resample.GroupByField
	kind  models.ValueKind
}

// layout orders the table columns categorical first, then the rest, each
// group in table order.
func layout(table *resample.Table) []column {
	var categorical, other []column
	for _, f := range table.Fields() {
		c := column{field: f, kind: columnKind(table.Column(f))}
		if c.kind == models.CategoryValue {
			categorical = append(categorical, c)
		} else {
			other = append(other, c)
		}
	}
	return append(categorical, other...)
}

func columnKind(points []frame.Point[models.Value]) models.ValueKind {
	if len(points) == 0 {
		return models.NumberValue
	}
	kind := points[0].Value.Kind()
	for _, p := range points[1:] {
		if p.Value.Kind() != kind {
			return models.CategoryValue
		}
	}
	return kind
}

func formatIndex(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Rows flattens table into identifiers, the index column named indexName,
// then one column per group-by field. Missing cells are empty strings.
func Rows(table *resample.Table, indexName string, ids ...Identifier) ByRows {
	cols := layout(table)

	header := make([]string, 0, len(ids)+1+len(cols))
	for _, id := range ids {
		header = append(header, id.Name)
	}
	header = append(header, indexName)
	for _, c := range cols {
		header = append(header, c.field.Key())
	}

	out := ByRows{Header: header, Rows: make([][]string, 0, table.Len())}
	for index := range table.All() {
		row := make([]string, 0, len(header))
		for _, id := range ids {
			row = append(row, id.Value)
		}
		row = append(row, formatIndex(index))
		for _, c := range cols {
			if v, ok := table.Value(index, c.field); ok {
				row = append(row, v.String())
			} else {
				row = append(row, "")
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// WriteCSV writes the header and every row of rows to w.
func WriteCSV(w io.Writer, rows ByRows) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rows.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(rows.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
