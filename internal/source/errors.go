package source

import "errors"

var (
	// ErrUnknownFlight is returned when a source holds no samples for the
	// requested flight.
	ErrUnknownFlight = errors.New("unknown flight")

	// ErrMixedColumn is returned for a field that carries both numeric and
	// string samples.
	ErrMixedColumn = errors.New("field mixes numeric and categorical samples")

	// ErrPayloadTooLarge is returned when a compressed payload expands past
	// the decompression limit.
	ErrPayloadTooLarge = errors.New("decompressed payload exceeds limit")

	// ErrSourceUnavailable is returned while a Breaker rejects reads after
	// repeated failures.
	ErrSourceUnavailable = errors.New("source unavailable: too many consecutive read failures")
)
