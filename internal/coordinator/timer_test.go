package coordinator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemTimer_FiresOnce(t *testing.T) {
	timer := newItemTimer()
	var fired atomic.Int32

	timer.Schedule(50*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestItemTimer_StopCancels(t *testing.T) {
	timer := newItemTimer()
	var fired atomic.Int32

	timer.Schedule(50*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	_, armed := timer.EndTime()
	assert.False(t, armed)
}

func TestItemTimer_ExtendAddsToRemaining(t *testing.T) {
	timer := newItemTimer()
	fn := func() {}

	first := timer.Schedule(time.Second, fn)
	extended := timer.Extend(500*time.Millisecond, fn)

	// New deadline = old deadline + extra (nothing elapsed yet worth
	// noticing), never a fresh full window.
	assert.False(t, extended.Before(first))
	delta := extended.Sub(first)
	assert.LessOrEqual(t, delta, 500*time.Millisecond)
	assert.Greater(t, delta, 400*time.Millisecond)
}

func TestItemTimer_ExtendAfterDeadline(t *testing.T) {
	timer := newItemTimer()
	var fired atomic.Int32
	fn := func() { fired.Add(1) }

	timer.Schedule(10*time.Millisecond, fn)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())

	// Remaining time is negative; only the extra counts.
	end := timer.Extend(50*time.Millisecond, fn)
	assert.InDelta(t, 50, time.Until(end).Milliseconds(), 20)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), fired.Load())
}

func TestItemTimer_RescheduleReplacesPending(t *testing.T) {
	timer := newItemTimer()
	var first, second atomic.Int32

	timer.Schedule(50*time.Millisecond, func() { first.Add(1) })
	timer.Schedule(50*time.Millisecond, func() { second.Add(1) })

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}
