//go:build !linux

package revent

// On non-Linux targets there is no timerfd-equivalent wired into x/sys/unix
// uniformly across BSD/Darwin, so the timer queue relies solely on Loop
// deriving its poll timeout from timerQueue.Earliest and re-checking after
// every Poll return. setupTimerFD is a no-op returning a nil closer.
func setupTimerFD(loop *Loop) (io interface{ close() error }, err error) {
	return nil, nil
}
