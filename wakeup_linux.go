//go:build linux

package revent

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// wakeupFD is a Linux eventfd: writing an 8-byte word makes it readable,
// forcing a blocked epoll_wait to return promptly.
type wakeupFD struct {
	fd int
}

func newWakeupFD() (*wakeupFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "revent: eventfd")
	}
	return &wakeupFD{fd: fd}, nil
}

func (w *wakeupFD) FD() int { return w.fd }

func (w *wakeupFD) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	unix.Write(w.fd, buf[:])
}

func (w *wakeupFD) drain() {
	var buf [8]byte
	unix.Read(w.fd, buf[:])
}

func (w *wakeupFD) Close() error { return unix.Close(w.fd) }
