//go:build unix && !linux

package revent

// newDefaultPoller falls back to the portable poll(2)-style backend on
// non-Linux Unix targets, where no epoll-like kernel facility exists.
func newDefaultPoller() (Poller, error) { return newPollPoller() }
