package revent

import (
	"os"
	"os/signal"
)

// SignalHandler bridges OS signal delivery into a Loop. It plays the role
// of the classic self-pipe trick: a background goroutine blocks on
// os/signal's channel (Go's equivalent of a signal handler writing to a
// pipe) and hands each signal to the loop via QueueInLoop, so the
// callback always runs on the loop's owner goroutine like every other
// event.
type SignalHandler struct {
	loop    *Loop
	ch      chan os.Signal
	stop    chan struct{}
	onClose chan struct{}
}

// NotifySignals starts relaying the given signals into loop, invoking cb
// on the loop's owner goroutine for each one received. Call Stop to
// unregister and release the background goroutine.
func NotifySignals(loop *Loop, cb func(os.Signal), signals ...os.Signal) *SignalHandler {
	h := &SignalHandler{
		loop:    loop,
		ch:      make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		onClose: make(chan struct{}),
	}
	signal.Notify(h.ch, signals...)
	go h.run(cb)
	return h
}

func (h *SignalHandler) run(cb func(os.Signal)) {
	defer close(h.onClose)
	for {
		select {
		case sig := <-h.ch:
			h.loop.QueueInLoop(func() { cb(sig) })
		case <-h.stop:
			return
		}
	}
}

// Stop unregisters the signal relay and waits for its goroutine to exit.
func (h *SignalHandler) Stop() {
	signal.Stop(h.ch)
	close(h.stop)
	<-h.onClose
}
