package revent

import (
	"os"
	"time"
)

// Poller is the pluggable readiness-backend abstraction: a mapping from
// file descriptor to Channel plus whatever per-fd state the
// underlying OS primitive requires. Exactly two implementations exist
// (epollPoller, pollPoller); the Loop carries one, chosen at construction.
type Poller interface {
	// Poll blocks up to timeout, appends every channel with nonempty
	// returned-events into active, and returns the moment it woke.
	Poll(timeout time.Duration, active *[]*Channel) (time.Time, error)
	// Update reconciles the backend's record of ch's requested mask with
	// ch's current mask. Must be called before the next Poll observes it.
	Update(ch *Channel) error
	// Remove ends ch's registration entirely.
	Remove(ch *Channel) error
	// Has reports whether ch is currently registered, for assertions.
	Has(ch *Channel) bool
	// Close releases backend resources (e.g. the epoll fd).
	Close() error
}

// newPoller picks epollPoller on Linux, unless REVENT_POLLER=poll forces
// the portable flat-array implementation — a REVENT_POLLER environment
// variable lets a test or operator force a specific backend.
func newPoller() (Poller, error) {
	if os.Getenv("REVENT_POLLER") == "poll" {
		return newPollPoller()
	}
	return newDefaultPoller()
}
