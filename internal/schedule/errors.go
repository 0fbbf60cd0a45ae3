package schedule

import "errors"

// ErrInvalidInterval is returned for bucket intervals shorter than one second.
var ErrInvalidInterval = errors.New("interval must be at least one second")
