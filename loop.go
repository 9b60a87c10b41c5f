package revent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultPollTimeout is used when no timer is scheduled.
const defaultPollTimeout = 10 * time.Second

// maxPollTimeout caps the derived poll timeout; 35 minutes is safe for
// Linux epoll's millisecond-resolution int argument.
const maxPollTimeout = 35 * time.Minute

// Loop is the owner-thread event-dispatch engine. Every
// registration, mutation, and timer operation must run on its owner
// goroutine; cross-goroutine requests are posted via RunInLoop/QueueInLoop.
type Loop struct {
	ownerGoroutine int64 // set at construction, compared via goroutineID()

	poller       Poller
	timerQueue   *timerQueue
	timerFDClose interface{ close() error }

	wakeup     *wakeupFD
	wakeupChan *Channel

	activeChannels []*Channel

	mu              sync.Mutex
	pendingFunctors []func()
	callingPending  bool

	quitFlag int32

	pollReturnTime time.Time

	pollTimeoutOverrideMs int // 0 means use derived/default; for PollTimeoutMs config
}

// NewLoop constructs a Loop bound to the calling goroutine. Construct a Loop
// only from the goroutine that will call Loop() on it; every other public
// mutation asserts this with AssertInLoopThread.
func NewLoop() (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	wk, err := newWakeupFD()
	if err != nil {
		p.Close()
		return nil, err
	}

	l := &Loop{
		ownerGoroutine: goroutineID(),
		poller:         p,
		timerQueue:     newTimerQueue(),
		wakeup:         wk,
	}

	l.wakeupChan = NewChannel(l, wk.FD())
	l.wakeupChan.SetReadCallback(func(time.Time) { wk.drain() })
	l.wakeupChan.EnableReading()

	if closer, err := setupTimerFD(l); err == nil {
		l.timerFDClose = closer
	} else {
		logFields(nil).WithError(err).Warn("revent: timerfd unavailable, falling back to derived poll timeout")
	}

	return l, nil
}

// SetPollTimeout overrides the default poll timeout used when no timer is
// scheduled.
func (l *Loop) SetPollTimeout(d time.Duration) {
	l.pollTimeoutOverrideMs = int(d / time.Millisecond)
}

// InLoopThread reports whether the calling goroutine is this loop's owner.
func (l *Loop) InLoopThread() bool { return goroutineID() == l.ownerGoroutine }

// AssertInLoopThread panics if the calling goroutine is not the owner.
// Programmer errors like this fail loudly rather than silently continuing.
func (l *Loop) AssertInLoopThread() {
	if !l.InLoopThread() {
		panic(fmt.Errorf("%w: owner=%d caller=%d", ErrNotOwnerThread, l.ownerGoroutine, goroutineID()))
	}
}

// IsQuit reports whether Quit has been requested.
func (l *Loop) IsQuit() bool { return atomic.LoadInt32(&l.quitFlag) != 0 }

// PollReturnTime returns the timestamp cached from the most recent Poll
// call, so handlers can observe a single consistent "now" instead of
// calling the clock themselves.
func (l *Loop) PollReturnTime() time.Time { return l.pollReturnTime }

// Loop runs the owner-thread dispatch loop until Quit is observed. Each
// iteration: clear the active-channel list, poll, publish the returned
// timestamp, dispatch each active channel, then run queued functors.
func (l *Loop) Loop() {
	l.AssertInLoopThread()
	for !l.IsQuit() {
		l.activeChannels = l.activeChannels[:0]

		timeout := l.pollTimeout()
		prevReturn := l.pollReturnTime
		receiveTime, err := l.poller.Poll(timeout, &l.activeChannels)
		if err != nil {
			logFields(nil).WithError(err).Warn("revent: backend poll failed, treating as no events")
			continue
		}
		l.pollReturnTime = receiveTime

		if !prevReturn.IsZero() && receiveTime.Before(prevReturn) {
			delta := receiveTime.Sub(prevReturn)
			l.timerQueue.shiftAll(delta)
			logFields(nil).Warn("revent: detected backward clock jump, shifted timer deadlines")
		}

		if l.timerFDClose == nil {
			// portable fallback: no timerfd channel exists, so expire
			// whatever is due every iteration using the freshly cached
			// poll-return timestamp.
			l.timerQueue.ExpireBefore(receiveTime)
		}

		for _, ch := range l.activeChannels {
			ch.HandleEvent(receiveTime)
		}

		l.runPendingFunctors()
	}
}

// pollTimeout derives the backend's poll timeout from the timer queue's
// earliest deadline: no timers -> default; else max(0, earliest-now),
// clipped to maxPollTimeout.
func (l *Loop) pollTimeout() time.Duration {
	earliest, ok := l.timerQueue.Earliest()
	if !ok {
		if l.pollTimeoutOverrideMs > 0 {
			return time.Duration(l.pollTimeoutOverrideMs) * time.Millisecond
		}
		return defaultPollTimeout
	}
	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	if d > maxPollTimeout {
		d = maxPollTimeout
	}
	return d
}

// Quit requests the loop stop. Safe from any goroutine; if called off the
// owner goroutine it wakes the loop so the flag is observed promptly.
func (l *Loop) Quit() {
	atomic.StoreInt32(&l.quitFlag, 1)
	if !l.InLoopThread() {
		l.Wakeup()
	}
}

// Wakeup forces a blocked Poll to return immediately. Safe from any
// goroutine.
func (l *Loop) Wakeup() {
	l.wakeup.wake()
}

// RunInLoop invokes f synchronously if called on the owner goroutine;
// otherwise forwards to QueueInLoop. Safe from any goroutine.
func (l *Loop) RunInLoop(f func()) {
	if l.InLoopThread() {
		f()
		return
	}
	l.QueueInLoop(f)
}

// QueueInLoop pushes f onto the pending-functors queue under its mutex and
// wakes the loop, unless the caller is the owner goroutine and is not
// itself currently executing pending functors — in that case f will be
// observed in this same iteration's tail without an extra wakeup.
func (l *Loop) QueueInLoop(f func()) {
	l.mu.Lock()
	l.pendingFunctors = append(l.pendingFunctors, f)
	needsWake := !l.InLoopThread() || l.callingPending
	l.mu.Unlock()

	if needsWake {
		l.Wakeup()
	}
}

// runPendingFunctors swaps the queue into a local slice under the mutex,
// releases the mutex, then invokes each functor. This bounds the critical
// section, lets functors call QueueInLoop without deadlock, and never
// drains the queue to empty within one iteration if functors keep
// re-queuing — any functor queued during this call is serviced next
// iteration.
func (l *Loop) runPendingFunctors() {
	l.mu.Lock()
	functors := l.pendingFunctors
	l.pendingFunctors = nil
	l.callingPending = true
	l.mu.Unlock()

	for _, f := range functors {
		f()
	}

	l.mu.Lock()
	l.callingPending = false
	l.mu.Unlock()
}

// RunAt schedules cb to run once at `when`. Must be called from the owner
// goroutine; wrap with RunInLoop to call from elsewhere.
func (l *Loop) RunAt(when time.Time, cb func()) TimerID {
	l.AssertInLoopThread()
	return l.timerQueue.Insert(newTimer(when, 0, cb))
}

// RunAfter schedules cb to run once after delay.
func (l *Loop) RunAfter(delay time.Duration, cb func()) TimerID {
	return l.RunAt(now().Add(delay), cb)
}

// RunEvery schedules cb to run every interval, first firing after interval.
func (l *Loop) RunEvery(interval time.Duration, cb func()) TimerID {
	l.AssertInLoopThread()
	return l.timerQueue.Insert(newTimer(now().Add(interval), interval, cb))
}

// Cancel removes the timer identified by id. Race-free when called on the
// owner goroutine; call from elsewhere by wrapping in RunInLoop
// (CancelFromAnyGoroutine does exactly this).
func (l *Loop) Cancel(id TimerID) error {
	l.AssertInLoopThread()
	return l.timerQueue.Cancel(id)
}

// CancelFromAnyGoroutine is a cross-thread-safe wrapper: it runs the
// cancellation through RunInLoop, inline when called on the owner goroutine
// and posted as a functor from any other goroutine.
func (l *Loop) CancelFromAnyGoroutine(id TimerID) {
	l.RunInLoop(func() { _ = l.timerQueue.Cancel(id) })
}

// updateChannel is called by Channel.update; must run on the owner
// goroutine.
func (l *Loop) updateChannel(ch *Channel) {
	l.AssertInLoopThread()
	if err := l.poller.Update(ch); err != nil {
		logFields(nil).WithError(err).Warn("revent: backend update failed")
	}
}

// removeChannel is called by Channel.Remove; must run on the owner
// goroutine.
func (l *Loop) removeChannel(ch *Channel) {
	l.AssertInLoopThread()
	if err := l.poller.Remove(ch); err != nil {
		logFields(nil).WithError(err).Warn("revent: backend remove failed")
	}
}

// Close tears down the loop's backend resources. Call only after Loop()
// has returned.
func (l *Loop) Close() error {
	if l.timerFDClose != nil {
		l.timerFDClose.close()
	}
	l.wakeup.Close()
	return l.poller.Close()
}
