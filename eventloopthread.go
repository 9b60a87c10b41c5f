package revent

import "sync"

// EventLoopThread spins up exactly one goroutine running exactly one Loop
// and hands back a ready *Loop synchronously once the Loop is constructed
// and its init callback has run, just before its Loop() call starts
// polling, muduo's EventLoopThread. Independently useful
// (e.g. a one-off background loop for a timer-only task) beyond its use as
// loopPool's building block.
type EventLoopThread struct {
	initCallback func(*Loop)

	mu      sync.Mutex
	loop    *Loop
	started chan struct{}
	done    chan struct{}
}

// NewEventLoopThread constructs a thread whose loop will run initCallback
// (if non-nil) before entering Loop().
func NewEventLoopThread(initCallback func(*Loop)) *EventLoopThread {
	return &EventLoopThread{
		initCallback: initCallback,
		started:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// StartLoop spawns the goroutine and blocks until its Loop is constructed
// and about to start polling, returning the ready *Loop.
func (t *EventLoopThread) StartLoop() (*Loop, error) {
	errCh := make(chan error, 1)
	go func() {
		defer close(t.done)
		l, err := NewLoop()
		if err != nil {
			errCh <- err
			close(t.started)
			return
		}
		t.mu.Lock()
		t.loop = l
		t.mu.Unlock()
		if t.initCallback != nil {
			t.initCallback(l)
		}
		errCh <- nil
		close(t.started)
		l.Loop()
	}()

	<-t.started
	if err := <-errCh; err != nil {
		return nil, err
	}
	return t.Loop(), nil
}

// Loop returns the running loop, or nil before StartLoop has completed.
func (t *EventLoopThread) Loop() *Loop {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// Stop requests the thread's loop quit and waits for its goroutine to
// return.
func (t *EventLoopThread) Stop() {
	if l := t.Loop(); l != nil {
		l.Quit()
	}
	<-t.done
}
