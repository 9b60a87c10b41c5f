package revent

import "time"

// EventMask is a bitmask of readiness kinds, shared between Channel
// (requested interest) and PollEvent (returned readiness).
type EventMask uint32

const (
	// EventNone requests/reports no interest.
	EventNone EventMask = 0
	// EventReadable requests/reports read readiness (includes urgent and
	// hangup-with-readable-data, per HandleEvent's dispatch rule below).
	EventReadable EventMask = 1 << iota
	// EventWritable requests/reports write readiness.
	EventWritable
	// eventHangup reports the peer hung up with no more readable data.
	eventHangup
	// eventError reports an error/exception condition on the fd.
	eventError
	// eventInvalid reports an invalid-fd indication from the backend.
	eventInvalid
)

// PollEvent is one fd's returned readiness, as filled by a Poller.Poll call.
type PollEvent struct {
	Channel *Channel
	Revents EventMask
}

// Channel binds exactly one file descriptor to exactly one Loop: a
// requested-interest mask, a returned-event mask filled by the backend each
// poll, callbacks, and the backend's private index.
type Channel struct {
	loop *Loop
	fd   int

	events  EventMask // requested
	revents EventMask // returned, set by the backend

	index int // backend-private back-reference; -1 means "never registered"

	readCallback  func(receiveTime time.Time)
	writeCallback func()
	closeCallback func()
	errorCallback func()

	tie          any // owner kept alive across HandleEvent dispatch
	eventHandling bool
	addedToLoop   bool
}

const channelNotRegistered = -1

// NewChannel creates a Channel for fd, bound to loop. The channel is not
// registered with the backend until EnableReading/EnableWriting is called.
func NewChannel(loop *Loop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: channelNotRegistered}
}

// FD returns the bound file descriptor. The Channel does not own it.
func (c *Channel) FD() int { return c.fd }

// Events returns the currently requested interest mask.
func (c *Channel) Events() EventMask { return c.events }

// SetRevents is called by the backend to record one poll's returned mask.
func (c *Channel) SetRevents(ev EventMask) { c.revents = ev }

// Index returns the backend-private back-reference.
func (c *Channel) Index() int { return c.index }

// SetIndex is called by the backend to store its private back-reference.
func (c *Channel) SetIndex(i int) { c.index = i }

// SetReadCallback installs the read-with-timestamp callback.
func (c *Channel) SetReadCallback(f func(receiveTime time.Time)) { c.readCallback = f }

// SetWriteCallback installs the write callback.
func (c *Channel) SetWriteCallback(f func()) { c.writeCallback = f }

// SetCloseCallback installs the close callback.
func (c *Channel) SetCloseCallback(f func()) { c.closeCallback = f }

// SetErrorCallback installs the error callback.
func (c *Channel) SetErrorCallback(f func()) { c.errorCallback = f }

// Tie anchors owner's lifetime to this channel for the duration of every
// future HandleEvent dispatch — the Go rendition of the weak/strong-pointer
// promotion muduo uses in C++; since Go's GC does not collect an
// object merely because a callback closure happens to reference it through
// an interface{}, simply storing the owner here and never dereferencing it
// as a pointer we've freed ourselves is sufficient to keep it reachable.
func (c *Channel) Tie(owner any) { c.tie = owner }

// update pushes the channel's interest mask to the loop's backend.
func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.updateChannel(c)
}

// EnableReading adds read interest and updates the backend.
func (c *Channel) EnableReading() {
	c.events |= EventReadable
	c.update()
}

// DisableReading removes read interest and updates the backend.
func (c *Channel) DisableReading() {
	c.events &^= EventReadable
	c.update()
}

// EnableWriting adds write interest and updates the backend.
func (c *Channel) EnableWriting() {
	c.events |= EventWritable
	c.update()
}

// DisableWriting removes write interest and updates the backend.
func (c *Channel) DisableWriting() {
	c.events &^= EventWritable
	c.update()
}

// DisableAll clears all interest and updates the backend.
func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

// IsWriting reports whether write interest is currently requested.
func (c *Channel) IsWriting() bool { return c.events&EventWritable != 0 }

// IsReading reports whether read interest is currently requested.
func (c *Channel) IsReading() bool { return c.events&EventReadable != 0 }

// IsNoneEvent reports whether no interest is currently requested.
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

// Remove deregisters the channel from its loop's backend entirely.
func (c *Channel) Remove() {
	c.addedToLoop = false
	c.loop.removeChannel(c)
}

// HandleEvent interprets the returned mask set by the backend and fires the
// appropriate callbacks, in this order: close (on
// hangup with no readable data) before invalid-fd before error before
// read/urgent/hangup-readable before write. It tolerates the owner being
// removed mid-dispatch, since tie keeps it reachable for the duration of
// this call.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	rv := c.revents
	if rv&eventHangup != 0 && rv&EventReadable == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
		return
	}
	if rv&eventInvalid != 0 {
		logFields(nil).Warnf("revent: invalid fd %d in returned events", c.fd)
		return
	}
	if rv&eventError != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
		return
	}
	if rv&(EventReadable|eventHangup) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if rv&EventWritable != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
