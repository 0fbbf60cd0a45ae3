package resample

import (
	"fmt"
	"slices"
	"strings"

	"github.com/basekick-labs/flightstats/internal/stats"
	"github.com/basekick-labs/flightstats/pkg/models"
)

// FieldSpec declares how one field is summarized.
type FieldSpec struct {
	Field   models.FieldID
	Kind    models.FieldKind
	Metrics []stats.Metric
}

// Spec is a validated set of field specifications. Fields keep their
// declaration order, which is also the order output columns appear in.
type Spec struct {
	fields []FieldSpec
	index  map[models.FieldID]int
}

// NewSpec validates fields and builds a Spec. Every metric must be supported
// by its field's kind and each field may be declared once. Repeated metrics
// within a field are dropped.
func NewSpec(fields ...FieldSpec) (*Spec, error) {
	s := &Spec{index: make(map[models.FieldID]int, len(fields))}
	for _, fs := range fields {
		if strings.TrimSpace(string(fs.Field)) == "" {
			return nil, &ConfigurationError{Reason: "empty field name"}
		}
		if _, dup := s.index[fs.Field]; dup {
			return nil, &ConfigurationError{Field: fs.Field, Reason: "field declared more than once"}
		}
		if fs.Kind != models.Numeric && fs.Kind != models.Categorical {
			return nil, &ConfigurationError{Field: fs.Field, Reason: fmt.Sprintf("unknown field kind %v", fs.Kind)}
		}
		if len(fs.Metrics) == 0 {
			return nil, &ConfigurationError{Field: fs.Field, Reason: "no metrics requested"}
		}

		metrics := make([]stats.Metric, 0, len(fs.Metrics))
		for _, m := range fs.Metrics {
			if !m.SupportedBy(fs.Kind) {
				return nil, &ConfigurationError{
					Field:  fs.Field,
					Metric: m.String(),
					Reason: fmt.Sprintf("not supported for %s fields", fs.Kind),
					Err:    stats.ErrUnsupportedMetric,
				}
			}
			if !slices.Contains(metrics, m) {
				metrics = append(metrics, m)
			}
		}

		s.index[fs.Field] = len(s.fields)
		s.fields = append(s.fields, FieldSpec{Field: fs.Field, Kind: fs.Kind, Metrics: metrics})
	}
	return s, nil
}

// Fields returns the field specifications in declaration order.
func (s *Spec) Fields() []FieldSpec { return slices.Clone(s.fields) }

// Len returns the number of declared fields.
func (s *Spec) Len() int { return len(s.fields) }

// IDs returns the declared field identifiers.
func (s *Spec) IDs() []models.FieldID {
	ids := make([]models.FieldID, len(s.fields))
	for i, fs := range s.fields {
		ids[i] = fs.Field
	}
	return ids
}

// Lookup returns the specification of field.
func (s *Spec) Lookup(field models.FieldID) (FieldSpec, bool) {
	i, ok := s.index[field]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Columns returns every (field, metric) column the spec can produce.
func (s *Spec) Columns() []GroupByField {
	var cols []GroupByField
	for _, fs := range s.fields {
		for _, m := range fs.Metrics {
			cols = append(cols, GroupByField{Field: fs.Field, Metric: m})
		}
	}
	return cols
}

// DefaultSpec returns the summary exported for flight legs when nothing else
// is configured.
func DefaultSpec() *Spec {
	spec, err := NewSpec(
		FieldSpec{Field: "Distance", Kind: models.Numeric, Metrics: []stats.Metric{stats.Total}},
		FieldSpec{Field: "Latitude", Kind: models.Numeric, Metrics: []stats.Metric{stats.Start}},
		FieldSpec{Field: "Longitude", Kind: models.Numeric, Metrics: []stats.Metric{stats.Start}},
		FieldSpec{Field: "E1 EGTMax", Kind: models.Numeric, Metrics: []stats.Metric{stats.Max, stats.Min}},
		FieldSpec{Field: "FTotalizerT", Kind: models.Numeric, Metrics: []stats.Metric{stats.Total}},
		FieldSpec{Field: "AfcsOn", Kind: models.Categorical, Metrics: []stats.Metric{stats.MostFrequent}},
		FieldSpec{Field: "E1 EGTMaxIdx", Kind: models.Categorical, Metrics: []stats.Metric{stats.End}},
	)
	if err != nil {
		panic(err)
	}
	return spec
}

// ParseFieldSpecs parses entries of the form "<field>:<metric>,<metric>"
// into field specifications of the given kind.
func ParseFieldSpecs(entries []string, kind models.FieldKind) ([]FieldSpec, error) {
	specs := make([]FieldSpec, 0, len(entries))
	for _, entry := range entries {
		i := strings.LastIndexByte(entry, ':')
		if i < 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid field spec %q (expected 'field:metric,metric')", entry)}
		}

		field := models.FieldID(strings.TrimSpace(entry[:i]))
		if field == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("empty field name in field spec %q", entry)}
		}

		names := strings.Split(entry[i+1:], ",")
		metrics := make([]stats.Metric, 0, len(names))
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, &ConfigurationError{Field: field, Reason: fmt.Sprintf("empty metric in field spec %q", entry)}
			}
			m, err := stats.ParseMetric(name)
			if err != nil {
				return nil, &ConfigurationError{Field: field, Metric: name, Reason: "unknown metric", Err: err}
			}
			metrics = append(metrics, m)
		}

		specs = append(specs, FieldSpec{Field: field, Kind: kind, Metrics: metrics})
	}
	return specs, nil
}
