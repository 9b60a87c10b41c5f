package revent

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Socket owns exactly one file descriptor. Go has no destructors, so unlike
// the C++ ancestry's "closes on drop," every caller (Acceptor, Connector,
// TCPConnection) calls Close explicitly on every exit path; Socket itself
// only guards against a double-close.
type Socket struct {
	fd     int
	closed bool
}

// NewSocket wraps an already-created, already-nonblocking file descriptor.
func NewSocket(fd int) *Socket { return &Socket{fd: fd} }

// FD returns the raw file descriptor. The caller does not own its lifetime.
func (s *Socket) FD() int { return s.fd }

// Close closes the underlying file descriptor exactly once.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// NewNonblockingListeningSocket creates, binds, and listens on a TCP socket,
// setting the nonblocking and close-on-exec flags atomically where the OS
// supports it (SOCK_NONBLOCK|SOCK_CLOEXEC).
func NewNonblockingListeningSocket(addr InetAddress, reuseAddr, reusePort bool) (*Socket, error) {
	domain := unix.AF_INET
	if addr.IsV6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "revent: socket")
	}
	s := NewSocket(fd)

	if reuseAddr {
		if err := s.SetReuseAddr(true); err != nil {
			s.Close()
			return nil, err
		}
	}
	if reusePort {
		if err := s.SetReusePort(true); err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := unix.Bind(fd, sockaddrOf(addr)); err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "revent: bind %s", addr)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "revent: listen")
	}
	return s, nil
}

// NewNonblockingConnectingSocket creates a nonblocking socket suitable for a
// Connector's nonblocking connect attempt.
func NewNonblockingConnectingSocket(v6 bool) (*Socket, error) {
	domain := unix.AF_INET
	if v6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "revent: socket")
	}
	return NewSocket(fd), nil
}

func sockaddrOf(addr InetAddress) unix.Sockaddr {
	if addr.IsV6() {
		sa := &unix.SockaddrInet6{Port: addr.Port()}
		copy(sa.Addr[:], addr.IP().To16())
		return sa
	}
	sa := &unix.SockaddrInet4{Port: addr.Port()}
	copy(sa.Addr[:], addr.IP().To4())
	return sa
}

// Accept performs one nonblocking accept4, returning a nil Socket and
// unix.EAGAIN when there is nothing pending.
func (s *Socket) Accept() (*Socket, InetAddress, error) {
	fd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, InetAddress{}, err
	}
	return NewSocket(fd), inetAddressOfSockaddr(sa), nil
}

func inetAddressOfSockaddr(sa unix.Sockaddr) InetAddress {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make([]byte, 4)
		copy(ip, v.Addr[:])
		return InetAddress{ip: ip, port: v.Port}
	case *unix.SockaddrInet6:
		ip := make([]byte, 16)
		copy(ip, v.Addr[:])
		return InetAddress{ip: ip, port: v.Port, isV6: true}
	default:
		return InetAddress{}
	}
}

// Connect starts a nonblocking connect; the caller must watch the fd for
// writability and then consult SOError.
func (s *Socket) Connect(addr InetAddress) error {
	err := unix.Connect(s.fd, sockaddrOf(addr))
	if err == unix.EINPROGRESS {
		return nil
	}
	return err
}

// SetReuseAddr toggles SO_REUSEADDR.
func (s *Socket) SetReuseAddr(on bool) error {
	return setBoolOpt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, on)
}

// SetReusePort toggles SO_REUSEPORT.
func (s *Socket) SetReusePort(on bool) error {
	return setBoolOpt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, on)
}

// SetTCPNoDelay toggles TCP_NODELAY (disables Nagle when on).
func (s *Socket) SetTCPNoDelay(on bool) error {
	return setBoolOpt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, on)
}

// SetKeepAlive toggles SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(on bool) error {
	return setBoolOpt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, on)
}

func setBoolOpt(fd, level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, level, opt, v)
}

// SOError fetches and clears SO_ERROR.
func (s *Socket) SOError() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// LocalAddr returns the locally bound address of the socket.
func (s *Socket) LocalAddr() (InetAddress, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return InetAddress{}, err
	}
	return inetAddressOfSockaddr(sa), nil
}

// PeerAddr returns the remote address of a connected socket.
func (s *Socket) PeerAddr() (InetAddress, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return InetAddress{}, err
	}
	return inetAddressOfSockaddr(sa), nil
}

// ShutdownWrite half-closes the write side of the socket, the mechanism
// TCPConnection.Shutdown relies on.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// Read performs one nonblocking read; callers interpret unix.EAGAIN as "try
// again after the next readiness event."
func (s *Socket) Read(buf []byte) (int, error) {
	return unix.Read(s.fd, buf)
}

// Write performs one nonblocking write.
func (s *Socket) Write(buf []byte) (int, error) {
	return unix.Write(s.fd, buf)
}
