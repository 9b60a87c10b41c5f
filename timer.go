package revent

import (
	"sync/atomic"
	"time"
)

// timerSeq is the process-global atomic sequence counter and one of the
// few pieces of global mutable state in this package, alongside the
// injectable logger: it exists purely to defeat pointer-reuse-after-free in
// cancellation handles.
var timerSeq int64

func nextTimerSeq() int64 { return atomic.AddInt64(&timerSeq, 1) }

// TimerID is an opaque, cancellable handle to a scheduled Timer. It carries
// both the timer's heap-index-stable identity (via seq) and enough
// information to look the timer up without ever dereferencing a freed
// pointer: the (pointer, sequence) pair defeats address reuse, since a
// freed and reallocated *Timer at the same address will carry a different
// sequence number.
type TimerID struct {
	timer *Timer
	seq   int64
}

// Timer is a scheduled callback: an absolute monotonic deadline, an
// optional repeat interval (zero means one-shot), and the user callback.
type Timer struct {
	deadline time.Time
	interval time.Duration
	callback func()
	seq      int64

	heapIndex int // position in the timerQueue's heap, maintained by container/heap
}

func newTimer(when time.Time, interval time.Duration, cb func()) *Timer {
	return &Timer{
		deadline: when,
		interval: interval,
		callback: cb,
		seq:      nextTimerSeq(),
	}
}

func (t *Timer) repeating() bool { return t.interval > 0 }

// restart recomputes the deadline as now+interval, for a repeating timer
// that has just fired.
func (t *Timer) restart(now time.Time) {
	t.deadline = now.Add(t.interval)
}

type timerKey struct {
	timer *Timer
	seq   int64
}

func keyOf(t *Timer) timerKey { return timerKey{timer: t, seq: t.seq} }
