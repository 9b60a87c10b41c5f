//go:build unix

package revent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testBackends(t *testing.T) []struct {
	name string
	new  func() (Poller, error)
} {
	backends := []struct {
		name string
		new  func() (Poller, error)
	}{
		{"poll", func() (Poller, error) { return newPollPoller() }},
	}
	if _, err := newDefaultPoller(); err == nil {
		backends = append(backends, struct {
			name string
			new  func() (Poller, error)
		}{"default", newDefaultPoller})
	}
	return backends
}

func TestPollerReportsReadableFD(t *testing.T) {
	for _, be := range testBackends(t) {
		t.Run(be.name, func(t *testing.T) {
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
			require.NoError(t, err)
			defer unix.Close(fds[0])
			defer unix.Close(fds[1])

			p, err := be.new()
			require.NoError(t, err)
			defer p.Close()

			loop := &Loop{poller: p}
			ch := NewChannel(loop, fds[0])
			ch.SetIndex(channelNotRegistered)
			ch.loop = loop
			ch.events = EventReadable
			require.NoError(t, p.Update(ch))

			var active []*Channel
			_, err = p.Poll(50*time.Millisecond, &active)
			require.NoError(t, err)
			require.Empty(t, active) // nothing written yet

			_, err = unix.Write(fds[1], []byte("x"))
			require.NoError(t, err)

			active = active[:0]
			_, err = p.Poll(time.Second, &active)
			require.NoError(t, err)
			require.Len(t, active, 1)
			require.True(t, active[0].revents&EventReadable != 0)
		})
	}
}

func TestPollerRemoveStopsReporting(t *testing.T) {
	for _, be := range testBackends(t) {
		t.Run(be.name, func(t *testing.T) {
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
			require.NoError(t, err)
			defer unix.Close(fds[0])
			defer unix.Close(fds[1])

			p, err := be.new()
			require.NoError(t, err)
			defer p.Close()

			loop := &Loop{poller: p}
			ch := NewChannel(loop, fds[0])
			ch.events = EventReadable
			require.NoError(t, p.Update(ch))
			require.True(t, p.Has(ch))

			require.NoError(t, p.Remove(ch))
			require.False(t, p.Has(ch))
		})
	}
}
