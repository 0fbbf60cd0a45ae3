package export

import "errors"

var (
	// ErrUnknownFormat is returned for an export format other than csv,
	// parquet or msgpack.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrUnknownCompression is returned for an unsupported Parquet codec.
	ErrUnknownCompression = errors.New("unknown parquet compression")
)
