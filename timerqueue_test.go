package revent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerQueueOrdersByDeadline(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()
	var order []int
	q.Insert(newTimer(base.Add(30*time.Millisecond), 0, func() { order = append(order, 3) }))
	q.Insert(newTimer(base.Add(10*time.Millisecond), 0, func() { order = append(order, 1) }))
	q.Insert(newTimer(base.Add(20*time.Millisecond), 0, func() { order = append(order, 2) }))

	q.ExpireBefore(base.Add(100 * time.Millisecond))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTimerQueueCancelRemovesLiveTimer(t *testing.T) {
	q := newTimerQueue()
	fired := false
	id := q.Insert(newTimer(time.Now().Add(time.Hour), 0, func() { fired = true }))
	require.NoError(t, q.Cancel(id))
	q.ExpireBefore(time.Now().Add(2 * time.Hour))
	require.False(t, fired)
}

func TestTimerQueueCancelUnknownReturnsError(t *testing.T) {
	q := newTimerQueue()
	bogus := TimerID{timer: &Timer{}, seq: 999999}
	require.ErrorIs(t, q.Cancel(bogus), ErrUnknownTimer)
}

func TestTimerQueueCancelFromInsideCallbackSuppressesReinsertion(t *testing.T) {
	q := newTimerQueue()
	var count int
	var id TimerID
	id = q.Insert(newTimer(time.Now(), 10*time.Millisecond, func() {
		count++
		q.Cancel(id)
	}))
	q.ExpireBefore(time.Now().Add(time.Millisecond))
	_, hasMore := q.Earliest()
	require.False(t, hasMore)
	require.Equal(t, 1, count)
}

func TestTimerQueueRepeatingReinsertsWithAdvancedDeadline(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()
	var count int
	q.Insert(newTimer(base, 10*time.Millisecond, func() { count++ }))

	next, ok := q.ExpireBefore(base)
	require.True(t, ok)
	require.True(t, next.After(base))
	require.Equal(t, 1, count)
}

func TestTimerQueueShiftAllOnBackwardClockJump(t *testing.T) {
	q := newTimerQueue()
	base := time.Now()
	timer := newTimer(base.Add(time.Second), 0, func() {})
	q.Insert(timer)

	q.shiftAll(-500 * time.Millisecond)
	earliest, ok := q.Earliest()
	require.True(t, ok)
	require.Equal(t, base.Add(500*time.Millisecond), earliest)
}
