//go:build linux

package revent

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	channelStateNew = iota
	channelStateAdded
	channelStateDeleted
)

const (
	initialEpollEvents = 16
	maxEpollEvents     = 4096
)

// epollPoller drives a Linux epoll set. Each channel carries an add/modify/
// delete state (kept in the channel's Index, which doubles as that state
// for this backend) so Update can emit the correct epoll_ctl
// call: new -> EPOLL_CTL_ADD, added -> MOD or DEL-on-empty-mask,
// deleted-then-reregistered -> ADD again.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
	byFD   map[int32]*Channel
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "revent: epoll_create1")
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, initialEpollEvents),
		byFD:   make(map[int32]*Channel),
	}, nil
}

func newDefaultPoller() (Poller, error) { return newEpollPoller() }

func (p *epollPoller) Poll(timeout time.Duration, active *[]*Channel) (time.Time, error) {
	ms := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	receiveTime := now()
	if err != nil {
		if err == unix.EINTR {
			return receiveTime, nil
		}
		return receiveTime, errors.Wrap(err, "revent: epoll_wait")
	}
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		ch, ok := p.byFD[int32(ev.Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(translateEpollEvents(ev.Events))
		*active = append(*active, ch)
	}
	if n == len(p.events) && len(p.events) < maxEpollEvents {
		newSize := len(p.events) * 2
		if newSize > maxEpollEvents {
			newSize = maxEpollEvents
		}
		p.events = make([]unix.EpollEvent, newSize)
	}
	return receiveTime, nil
}

func translateEpollEvents(e uint32) EventMask {
	var m EventMask
	if e&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		m |= EventReadable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= EventWritable
	}
	if e&unix.EPOLLHUP != 0 {
		m |= eventHangup
	}
	if e&unix.EPOLLERR != 0 {
		m |= eventError
	}
	return m
}

func requestedEpollEvents(m EventMask) uint32 {
	var e uint32
	if m&EventReadable != 0 {
		e |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if m&EventWritable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (p *epollPoller) Update(ch *Channel) error {
	state := ch.Index()
	switch state {
	case channelNotRegistered, channelStateNew, channelStateDeleted:
		if ch.IsNoneEvent() {
			return nil
		}
		ev := unix.EpollEvent{Events: requestedEpollEvents(ch.Events()), Fd: int32(ch.FD())}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, ch.FD(), &ev); err != nil {
			return errors.Wrap(err, "revent: epoll_ctl add")
		}
		p.byFD[int32(ch.FD())] = ch
		ch.SetIndex(channelStateAdded)
	case channelStateAdded:
		if ch.IsNoneEvent() {
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ch.FD(), nil); err != nil {
				return errors.Wrap(err, "revent: epoll_ctl del")
			}
			delete(p.byFD, int32(ch.FD()))
			ch.SetIndex(channelStateDeleted)
			return nil
		}
		ev := unix.EpollEvent{Events: requestedEpollEvents(ch.Events()), Fd: int32(ch.FD())}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, ch.FD(), &ev); err != nil {
			return errors.Wrap(err, "revent: epoll_ctl mod")
		}
	}
	return nil
}

func (p *epollPoller) Remove(ch *Channel) error {
	if ch.Index() == channelStateAdded {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, ch.FD(), nil); err != nil {
			return errors.Wrap(err, "revent: epoll_ctl del")
		}
	}
	delete(p.byFD, int32(ch.FD()))
	ch.SetIndex(channelNotRegistered)
	return nil
}

func (p *epollPoller) Has(ch *Channel) bool {
	_, ok := p.byFD[int32(ch.FD())]
	return ok
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
