package schedule

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestObservedPropTest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	seed := time.Now().UnixNano()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(seed)
	props := gopter.NewProperties(parameters)
	reporter := gopter.NewFormatedReporter(true, 160, os.Stdout)

	offsets := gen.SliceOf(gen.Int64Range(0, int64(6*time.Hour)))
	intervals := gen.Int64Range(1, 600)

	props.Property("schedule is strictly increasing and on the grid",
		prop.ForAll(func(offs []int64, secs int64) (bool, error) {
			interval := time.Duration(secs) * time.Second
			index := make([]time.Time, len(offs))
			for i, o := range offs {
				index[i] = t0.Add(time.Duration(o))
			}
			got, err := Observed(index, interval)
			if err != nil {
				return false, err
			}
			for i, b := range got {
				if b.UnixNano()%int64(interval) != 0 {
					return false, fmt.Errorf("boundary %s is off the grid", b)
				}
				if i > 0 && !got[i-1].Before(b) {
					return false, fmt.Errorf("boundaries %s and %s out of order", got[i-1], b)
				}
			}
			if len(index) > 0 && len(got) == 0 {
				return false, fmt.Errorf("non-empty index produced no boundaries")
			}
			return true, nil
		}, offsets, intervals))

	props.Property("every sample rounds to a boundary in the schedule",
		prop.ForAll(func(offs []int64, secs int64) bool {
			interval := time.Duration(secs) * time.Second
			index := make([]time.Time, len(offs))
			for i, o := range offs {
				index[i] = t0.Add(time.Duration(o))
			}
			got, err := Observed(index, interval)
			if err != nil {
				return false
			}
			for _, ts := range index {
				r := Round(ts, interval)
				if !got[Locate(got, r)].Equal(r) {
					return false
				}
			}
			return true
		}, offsets, intervals))

	if !props.Run(reporter) {
		t.Errorf("failed with initial seed: %d", seed)
	}
}
