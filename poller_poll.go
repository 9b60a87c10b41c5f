//go:build unix

package revent

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pollPoller emulates a poll(2)-style flat array: one slot per registered
// fd, with the channel's backend index pointing at its slot. Removal swaps
// the target slot with the last and pops (O(1)); to tolerate a channel that
// temporarily drops all interest without removing its slot, the fd is
// stored as -fd-1 so a concurrent Poll ignores the slot while the back
// reference still identifies it.
type pollPoller struct {
	pollfds  []unix.PollFd
	channels []*Channel
}

func newPollPoller() (*pollPoller, error) {
	return &pollPoller{}, nil
}

func (p *pollPoller) Poll(timeout time.Duration, active *[]*Channel) (time.Time, error) {
	ms := int(timeout / time.Millisecond)
	n, err := unix.Poll(p.pollfds, ms)
	receiveTime := now()
	if err != nil {
		if err == unix.EINTR {
			return receiveTime, nil
		}
		return receiveTime, errors.Wrap(err, "revent: poll")
	}
	if n <= 0 {
		return receiveTime, nil
	}
	for i := range p.pollfds {
		if n == 0 {
			break
		}
		pfd := &p.pollfds[i]
		if pfd.Fd < 0 {
			continue // tombstoned slot, temporarily out of interest
		}
		if pfd.Revents != 0 {
			n--
			ch := p.channels[i]
			ch.SetRevents(translateRevents(pfd.Revents))
			*active = append(*active, ch)
		}
	}
	return receiveTime, nil
}

func translateRevents(r int16) EventMask {
	var m EventMask
	if r&(unix.POLLIN|unix.POLLPRI) != 0 {
		m |= EventReadable
	}
	if r&unix.POLLOUT != 0 {
		m |= EventWritable
	}
	if r&unix.POLLHUP != 0 {
		m |= eventHangup
	}
	if r&(unix.POLLERR) != 0 {
		m |= eventError
	}
	if r&unix.POLLNVAL != 0 {
		m |= eventInvalid
	}
	return m
}

func requestedEvents(m EventMask) int16 {
	var r int16
	if m&EventReadable != 0 {
		r |= unix.POLLIN
	}
	if m&EventWritable != 0 {
		r |= unix.POLLOUT
	}
	return r
}

func (p *pollPoller) Update(ch *Channel) error {
	if ch.Index() == channelNotRegistered {
		if ch.IsNoneEvent() {
			return nil // never registered, nothing requested: nothing to do
		}
		idx := len(p.pollfds)
		p.pollfds = append(p.pollfds, unix.PollFd{Fd: int32(ch.FD()), Events: requestedEvents(ch.Events())})
		p.channels = append(p.channels, ch)
		ch.SetIndex(idx)
		return nil
	}

	idx := ch.Index()
	if ch.IsNoneEvent() {
		// tombstone: negate so a concurrent Poll ignores this slot while
		// the back-reference at idx still identifies it.
		p.pollfds[idx].Fd = -int32(ch.FD()) - 1
		p.pollfds[idx].Events = 0
		return nil
	}
	p.pollfds[idx].Fd = int32(ch.FD())
	p.pollfds[idx].Events = requestedEvents(ch.Events())
	return nil
}

func (p *pollPoller) Remove(ch *Channel) error {
	idx := ch.Index()
	if idx == channelNotRegistered || idx >= len(p.pollfds) {
		return nil
	}
	last := len(p.pollfds) - 1
	if idx != last {
		p.pollfds[idx] = p.pollfds[last]
		p.channels[idx] = p.channels[last]
		p.channels[idx].SetIndex(idx)
	}
	p.pollfds = p.pollfds[:last]
	p.channels = p.channels[:last]
	ch.SetIndex(channelNotRegistered)
	return nil
}

func (p *pollPoller) Has(ch *Channel) bool {
	idx := ch.Index()
	return idx != channelNotRegistered && idx < len(p.pollfds)
}

func (p *pollPoller) Close() error { return nil }
