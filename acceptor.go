package revent

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// NewConnectionCallback is invoked once per accepted connection with its
// socket and peer address.
type NewConnectionCallback func(conn *Socket, peer InetAddress)

// Acceptor owns a listening socket and its Channel, accepting connections
// in a loop on read-readiness until it would block. It also implements
// the EMFILE recovery technique: a
// spare fd held open against /dev/null, closed and reopened around an
// accept-then-close when the fd table is exhausted, so the listening
// socket does not spin reporting readable forever.
type Acceptor struct {
	loop     *Loop
	socket   *Socket
	channel  *Channel
	spareFD  *os.File
	onAccept NewConnectionCallback
	listening bool
}

// NewAcceptor creates a nonblocking listening socket bound to addr and
// registers its read callback with loop. The acceptor does not start
// listening for events until Listen is called.
func NewAcceptor(loop *Loop, addr InetAddress, reusePort bool) (*Acceptor, error) {
	sock, err := NewNonblockingListeningSocket(addr, true, reusePort)
	if err != nil {
		return nil, err
	}
	spare, err := os.Open(os.DevNull)
	if err != nil {
		sock.Close()
		return nil, err
	}

	a := &Acceptor{loop: loop, socket: sock, spareFD: spare}
	a.channel = NewChannel(loop, sock.FD())
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the callback invoked per accepted fd.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) { a.onAccept = cb }

// Listen begins reporting readability on the listening socket.
func (a *Acceptor) Listen() {
	a.listening = true
	a.channel.EnableReading()
}

// Addr returns the bound local address.
func (a *Acceptor) Addr() (InetAddress, error) { return a.socket.LocalAddr() }

func (a *Acceptor) handleRead(time.Time) {
	for {
		conn, peer, err := a.socket.Accept()
		if err == nil {
			if a.onAccept != nil {
				a.onAccept(conn, peer)
			} else {
				conn.Close()
			}
			continue
		}

		switch err {
		case unix.EAGAIN:
			return
		case unix.EMFILE, unix.ENFILE:
			a.handleEMFILE()
			return
		case unix.EINTR, unix.ECONNABORTED:
			continue
		default:
			logFields(nil).WithError(err).Warn("revent: accept failed")
			return
		}
	}
}

// handleEMFILE recovers from fd exhaustion: close the spare fd to
// free one slot, accept-then-close the pending connection so the kernel can
// reap it, then reopen the spare so the next exhaustion can be handled too.
func (a *Acceptor) handleEMFILE() {
	logFields(nil).Warn("revent: EMFILE/ENFILE on accept, recovering via spare fd")
	a.spareFD.Close()
	conn, _, err := a.socket.Accept()
	if err == nil {
		conn.Close()
	}
	if spare, err := os.Open(os.DevNull); err == nil {
		a.spareFD = spare
	} else {
		logFields(nil).WithError(err).Error("revent: failed to reopen spare fd after EMFILE recovery")
	}
}

// Close stops listening and releases the acceptor's resources.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	a.spareFD.Close()
	return a.socket.Close()
}
