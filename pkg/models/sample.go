package models

import (
	"fmt"
	"sort"
	"time"
)

// FieldID names a telemetry channel, e.g. "AltMSL" or "E1 EGTMax".
type FieldID string

// FieldKind declares how a field's samples are summarized.
type FieldKind int

const (
	// Numeric fields carry float64 samples.
	Numeric FieldKind = iota
	// Categorical fields carry discrete string samples.
	Categorical
)

func (k FieldKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// ParseFieldKind converts "numeric" or "categorical" to a FieldKind.
func ParseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "numeric", "value":
		return Numeric, nil
	case "categorical":
		return Categorical, nil
	default:
		return Numeric, fmt.Errorf("unknown field kind %q", s)
	}
}

// Sample is a single observation of one field.
type Sample struct {
	Index    time.Time
	Number   float64
	Category string
}

// Series holds the samples of one field as parallel slices ordered by index.
// Exactly one of Numbers or Categories is populated, according to Kind.
type Series struct {
	Kind       FieldKind
	Indexes    []time.Time
	Numbers    []float64
	Categories []string
}

// NewNumericSeries builds a numeric series. indexes and values must have the same length.
func NewNumericSeries(indexes []time.Time, values []float64) Series {
	return Series{Kind: Numeric, Indexes: indexes, Numbers: values}
}

// NewCategoricalSeries builds a categorical series. indexes and values must have the same length.
func NewCategoricalSeries(indexes []time.Time, values []string) Series {
	return Series{Kind: Categorical, Indexes: indexes, Categories: values}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Indexes) }

// At returns the i-th sample.
func (s Series) At(i int) Sample {
	if s.Kind == Categorical {
		return Sample{Index: s.Indexes[i], Category: s.Categories[i]}
	}
	return Sample{Index: s.Indexes[i], Number: s.Numbers[i]}
}

// Validate checks that the value slice matches the index slice.
func (s Series) Validate() error {
	n := len(s.Indexes)
	switch s.Kind {
	case Numeric:
		if len(s.Numbers) != n || len(s.Categories) != 0 {
			return fmt.Errorf("numeric series has %d indexes and %d values", n, len(s.Numbers))
		}
	case Categorical:
		if len(s.Categories) != n || len(s.Numbers) != 0 {
			return fmt.Errorf("categorical series has %d indexes and %d values", n, len(s.Categories))
		}
	default:
		return fmt.Errorf("series has unknown kind %v", s.Kind)
	}
	return nil
}

// IsSorted reports whether the indexes are in non-decreasing order.
func (s Series) IsSorted() bool {
	return sort.SliceIsSorted(s.Indexes, func(i, j int) bool {
		return s.Indexes[i].Before(s.Indexes[j])
	})
}

// Sorted returns a copy of the series ordered by index. Samples sharing an
// index keep their relative order.
func (s Series) Sorted() Series {
	if s.IsSorted() {
		return s
	}
	perm := make([]int, len(s.Indexes))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return s.Indexes[perm[i]].Before(s.Indexes[perm[j]])
	})

	out := Series{Kind: s.Kind, Indexes: make([]time.Time, len(perm))}
	if s.Kind == Categorical {
		out.Categories = make([]string, len(perm))
	} else {
		out.Numbers = make([]float64, len(perm))
	}
	for dst, src := range perm {
		out.Indexes[dst] = s.Indexes[src]
		if s.Kind == Categorical {
			out.Categories[dst] = s.Categories[src]
		} else {
			out.Numbers[dst] = s.Numbers[src]
		}
	}
	return out
}
