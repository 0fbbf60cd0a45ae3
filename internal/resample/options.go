package resample

import (
	"fmt"
	"strings"
)

// ScheduleMode selects how bucket boundaries are derived.
type ScheduleMode string

const (
	// ScheduleObserved places one boundary per distinct rounded sample time.
	ScheduleObserved ScheduleMode = "observed"
	// ScheduleRegular places boundaries on a fixed grid over the data span,
	// including buckets no sample falls into.
	ScheduleRegular ScheduleMode = "regular"
)

// ParseScheduleMode converts a configuration value to a ScheduleMode.
func ParseScheduleMode(s string) (ScheduleMode, error) {
	switch ScheduleMode(strings.ToLower(strings.TrimSpace(s))) {
	case ScheduleObserved, "":
		return ScheduleObserved, nil
	case ScheduleRegular:
		return ScheduleRegular, nil
	default:
		return "", fmt.Errorf("unknown schedule mode %q (expected 'observed' or 'regular')", s)
	}
}

// Options tunes a Resampler.
type Options struct {
	Mode ScheduleMode
	// SkipNonFinite drops NaN and infinite numeric samples before bucketing.
	SkipNonFinite bool
}

// DefaultOptions returns observed scheduling with non-finite samples skipped.
func DefaultOptions() Options {
	return Options{Mode: ScheduleObserved, SkipNonFinite: true}
}
