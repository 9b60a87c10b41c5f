package revent

import (
	"time"

	"golang.org/x/sys/unix"
)

// Connector configuration bounds for back-off.
const (
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 30 * time.Second
)

// connectorState mirrors the internal state machine muduo's Connector uses
// to make Stop cooperative.
type connectorState int

const (
	connectorDisconnected connectorState = iota
	connectorConnecting
	connectorConnected
)

// Connector performs a nonblocking connect with exponential back-off retry,
// handing the resulting fd to onConnected once established.
type Connector struct {
	loop *Loop
	addr InetAddress

	state   connectorState
	connect bool // false once Stop has been called; "do not connect"

	retryDelay    time.Duration
	initialDelay  time.Duration
	maxDelay      time.Duration
	retryTimerID  TimerID
	hasRetryTimer bool

	channel *Channel
	socket  *Socket

	onConnected func(sock *Socket, peer InetAddress)
	onError     func(err error)
}

// NewConnector creates a Connector targeting addr. Start must be called to
// begin connecting.
func NewConnector(loop *Loop, addr InetAddress) *Connector {
	return &Connector{
		loop:         loop,
		addr:         addr,
		initialDelay: DefaultInitialRetryDelay,
		maxDelay:     DefaultMaxRetryDelay,
		retryDelay:   DefaultInitialRetryDelay,
	}
}

// SetRetryBounds overrides the initial/max back-off delay configuration
// options.
func (c *Connector) SetRetryBounds(initial, max time.Duration) {
	c.initialDelay = initial
	c.maxDelay = max
	c.retryDelay = initial
}

// SetNewConnectionCallback installs the callback invoked once the socket
// connects successfully.
func (c *Connector) SetNewConnectionCallback(cb func(sock *Socket, peer InetAddress)) {
	c.onConnected = cb
}

// SetErrorCallback installs the callback invoked on hard (non-retryable)
// connect failure.
func (c *Connector) SetErrorCallback(cb func(err error)) { c.onError = cb }

// Start begins the first connect attempt. Must be called from the loop's
// owner goroutine (wrap with RunInLoop otherwise).
func (c *Connector) Start() {
	c.loop.AssertInLoopThread()
	c.connect = true
	c.startInLoop()
}

func (c *Connector) startInLoop() {
	if !c.connect {
		if c.onError != nil {
			c.onError(ErrConnectorStopped)
		}
		return
	}
	sock, err := NewNonblockingConnectingSocket(c.addr.IsV6())
	if err != nil {
		logFields(nil).WithError(err).Error("revent: connector socket creation failed")
		return
	}

	c.state = connectorConnecting
	c.socket = sock
	err = sock.Connect(c.addr)
	if err == nil || err == unix.EINPROGRESS {
		c.registerForWrite()
		return
	}

	sock.Close()
	c.socket = nil
	if isHardConnectError(err) {
		logFields(nil).WithError(err).Error("revent: hard connect failure, giving up")
		if c.onError != nil {
			c.onError(err)
		}
		return
	}
	c.retryInLoop()
}

func (c *Connector) registerForWrite() {
	c.channel = NewChannel(c.loop, c.socket.FD())
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetErrorCallback(c.handleError)
	c.channel.EnableWriting()
}

func (c *Connector) handleWrite() {
	if c.state != connectorConnecting {
		return
	}
	sock := c.socket
	c.removeChannel()

	if err := sock.SOError(); err != nil {
		sock.Close()
		c.retryInLoop()
		return
	}

	if c.isSelfConnect(sock) {
		sock.Close()
		c.retryInLoop()
		return
	}

	c.state = connectorConnected
	c.retryDelay = c.initialDelay
	if c.onConnected != nil {
		peer, _ := sock.PeerAddr()
		c.onConnected(sock, peer)
	}
}

func (c *Connector) handleError() {
	if c.state != connectorConnecting {
		return
	}
	sock := c.socket
	c.removeChannel()
	sock.Close()
	c.retryInLoop()
}

func (c *Connector) removeChannel() {
	if c.channel != nil {
		c.channel.DisableAll()
		c.channel.Remove()
		c.channel = nil
	}
	c.socket = nil
}

func (c *Connector) isSelfConnect(sock *Socket) bool {
	local, err1 := sock.LocalAddr()
	peer, err2 := sock.PeerAddr()
	if err1 != nil || err2 != nil {
		return false
	}
	return local.String() == peer.String()
}

func (c *Connector) retryInLoop() {
	c.state = connectorDisconnected
	if !c.connect {
		return
	}
	logFields(nil).Infof("revent: connector retrying %s in %s", c.addr, c.retryDelay)
	c.hasRetryTimer = true
	c.retryTimerID = c.loop.RunAfter(c.retryDelay, func() {
		c.hasRetryTimer = false
		c.startInLoop()
	})
	c.retryDelay *= 2
	if c.retryDelay > c.maxDelay {
		c.retryDelay = c.maxDelay
	}
}

// Stop is cooperative: it marks "do not connect," cancels any pending retry
// timer, and if currently connecting, removes the channel and closes the
// fd — all from within the owner loop.
func (c *Connector) Stop() {
	c.loop.RunInLoop(func() {
		c.connect = false
		if c.hasRetryTimer {
			c.loop.Cancel(c.retryTimerID)
			c.hasRetryTimer = false
		}
		if c.state == connectorConnecting && c.socket != nil {
			sock := c.socket
			c.removeChannel()
			sock.Close()
		}
		c.state = connectorDisconnected
	})
}

func isHardConnectError(err error) bool {
	switch err {
	case unix.EACCES, unix.EPERM, unix.EAFNOSUPPORT, unix.EADDRINUSE,
		unix.EADDRNOTAVAIL, unix.EISCONN, unix.EBADF, unix.EFAULT, unix.ENOTSOCK:
		return true
	default:
		return false
	}
}
