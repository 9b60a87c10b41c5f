//go:build unix && !linux

package revent

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// wakeupFD is the portable self-pipe fallback: a connected socket pair
// where writing one byte to the write end makes the read end readable,
// the same mechanism used for signal delivery into the loop.
type wakeupFD struct {
	readFD, writeFD int
}

func newWakeupFD() (*wakeupFD, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "revent: socketpair")
	}
	return &wakeupFD{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *wakeupFD) FD() int { return w.readFD }

func (w *wakeupFD) wake() {
	unix.Write(w.writeFD, []byte{1})
}

func (w *wakeupFD) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (w *wakeupFD) Close() error {
	unix.Close(w.writeFD)
	return unix.Close(w.readFD)
}
