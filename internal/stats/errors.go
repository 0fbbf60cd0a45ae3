package stats

import "errors"

var (
	// ErrUnsupportedMetric indicates a metric that the accumulator cannot produce.
	ErrUnsupportedMetric = errors.New("metric not supported by accumulator")

	// ErrUnknownMetric indicates a metric name that does not parse.
	ErrUnknownMetric = errors.New("unknown metric")
)
