package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2022, 11, 19, 10, 0, 0, 0, time.UTC)

func TestInterval_Elapsed(t *testing.T) {
	i := New(t0, t0.Add(90*time.Second))
	assert.Equal(t, 90*time.Second, i.Elapsed())

	reversed := New(t0.Add(time.Minute), t0)
	assert.Equal(t, -time.Minute, reversed.Elapsed())
}

func TestInterval_Compositions(t *testing.T) {
	taxi := New(t0, t0.Add(5*time.Minute))
	flight := New(t0.Add(7*time.Minute), t0.Add(67*time.Minute))

	tests := []struct {
		name string
		got  Interval
		want Interval
	}{
		{"start joined to", taxi.StartJoinedTo(flight), New(t0, t0.Add(7*time.Minute))},
		{"start to end of", taxi.StartToEndOf(flight), New(t0, t0.Add(67*time.Minute))},
		{"end joined to", taxi.EndJoinedTo(flight), New(t0.Add(5*time.Minute), t0.Add(67*time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	// composing in the opposite order yields a reversed span
	back := flight.EndJoinedTo(taxi)
	assert.Less(t, int64(back.Elapsed()), int64(0))
}

func TestInterval_Contains(t *testing.T) {
	i := New(t0, t0.Add(time.Minute))
	assert.True(t, i.Contains(t0))
	assert.True(t, i.Contains(t0.Add(59*time.Second)))
	assert.False(t, i.Contains(t0.Add(time.Minute)))
	assert.False(t, i.Contains(t0.Add(-time.Nanosecond)))
}

func TestOf(t *testing.T) {
	_, ok := Of(nil)
	assert.False(t, ok)

	i, ok := Of([]time.Time{t0, t0.Add(time.Second), t0.Add(time.Hour)})
	require.True(t, ok)
	assert.Equal(t, New(t0, t0.Add(time.Hour)), i)
}

func TestInterval_Schedule(t *testing.T) {
	i := New(t0.Add(10*time.Second), t0.Add(130*time.Second))
	got := i.Schedule(time.Minute)
	want := []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute), t0.Add(3 * time.Minute)}
	assert.Equal(t, want, got)

	aligned := New(t0, t0.Add(2*time.Minute)).Schedule(time.Minute)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute)}, aligned)

	single := New(t0, t0).Schedule(time.Minute)
	assert.Equal(t, []time.Time{t0}, single)

	assert.Nil(t, i.Schedule(0))
}
