package resample

import (
	"errors"
	"strings"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a metric specification, or a source, that the
// resampler cannot honour.
type ConfigurationError struct {
	Field  models.FieldID
	Metric string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Field != "" {
		b.WriteString(": field ")
		b.WriteString(string(e.Field))
	}
	if e.Metric != "" {
		b.WriteString(": metric ")
		b.WriteString(e.Metric)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
