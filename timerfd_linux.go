//go:build linux

package revent

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// timerFD wraps a Linux timerfd, which participates as one more readiness
// source in the loop's backend: a Channel registered for
// reading whose callback drains the fd and asks the timerQueue to expire
// whatever is now due.
type timerFD struct {
	fd      int
	channel *Channel
}

func newTimerFDSource(loop *Loop) (*timerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "revent: timerfd_create")
	}
	tf := &timerFD{fd: fd}
	tf.channel = NewChannel(loop, fd)
	tf.channel.SetReadCallback(func(time.Time) {
		tf.drain()
		recvTime := now()
		if newEarliest, ok := loop.timerQueue.ExpireBefore(recvTime); ok {
			tf.set(newEarliest)
		}
	})
	tf.channel.EnableReading()
	return tf, nil
}

func (tf *timerFD) drain() {
	var buf [8]byte
	unix.Read(tf.fd, buf[:])
}

// set reprograms the timerfd to fire at deadline. Reprogramming only occurs
// when the earliest deadline changes: timerQueue.Insert invokes this when the
// newly inserted timer became the new earliest, and the read callback above
// invokes it with the new earliest deadline after expiring due timers.
func (tf *timerFD) set(deadline time.Time) {
	d := time.Until(deadline)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	unix.TimerfdSettime(tf.fd, 0, &spec, nil)
}

func (tf *timerFD) close() error {
	tf.channel.DisableAll()
	tf.channel.Remove()
	return unix.Close(tf.fd)
}

// setupTimerFD wires a real timerfd into loop.timerQueue as its reprogram
// hook, registering its Channel with the loop.
func setupTimerFD(loop *Loop) (interface{ close() error }, error) {
	tf, err := newTimerFDSource(loop)
	if err != nil {
		return nil, err
	}
	loop.timerQueue.reprogram = tf.set
	return tf, nil
}
