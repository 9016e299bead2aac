package fw

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresWhenDue(t *testing.T) {
	s := NewScheduler()
	fired := 0
	s.Schedule(100*time.Millisecond, func() time.Duration {
		fired++
		return 0
	})

	s.Advance(core.WrappedTime(0).Add(core.DurationToTicks(50 * time.Millisecond)))
	assert.Equal(t, 0, fired, "must not fire before its delay elapses")

	s.Advance(core.WrappedTime(0).Add(core.DurationToTicks(150 * time.Millisecond)))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerRearmsOnNonZeroReturn(t *testing.T) {
	s := NewScheduler()
	fired := 0
	var cb func() time.Duration
	cb = func() time.Duration {
		fired++
		if fired < 3 {
			return 10 * time.Millisecond
		}
		return 0
	}
	s.Schedule(10*time.Millisecond, cb)

	for i := 0; i < 5; i++ {
		s.Advance(core.WrappedTime(0).Add(core.DurationToTicks(time.Duration(i+1) * 10 * time.Millisecond)))
	}
	assert.Equal(t, 3, fired)
	assert.Equal(t, 0, s.Pending())
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	s := NewScheduler()
	fired := false
	h := s.Schedule(10*time.Millisecond, func() time.Duration {
		fired = true
		return 0
	})
	s.Cancel(h)
	s.Advance(core.WrappedTime(0).Add(core.DurationToTicks(time.Second)))
	assert.False(t, fired)

	// Canceling twice, or canceling an already-fired handle, must be safe.
	s.Cancel(h)
	require.NotPanics(t, func() { s.Cancel(h) })
}
