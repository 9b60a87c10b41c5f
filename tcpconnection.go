package revent

import (
	"time"

	"golang.org/x/sys/unix"
)

// ConnectionState is the TCPConnection lifecycle state.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DefaultHighWatermark is the output-buffer size at which the back-pressure
// callback fires, 64 MiB by default.
const DefaultHighWatermark = 64 * 1024 * 1024

// ConnectionCallback reports a connection transitioning up (true) or down
// (false).
type ConnectionCallback func(conn *TCPConnection, up bool)

// MessageCallback is invoked with newly readable bytes; it owns the
// decision to consume some prefix of input, leaving the rest buffered.
type MessageCallback func(conn *TCPConnection, input *Buffer, receiveTime time.Time)

// WriteCompleteCallback fires once the output buffer has fully drained.
type WriteCompleteCallback func(conn *TCPConnection)

// HighWatermarkCallback fires the first time the output buffer's size
// crosses the configured threshold.
type HighWatermarkCallback func(conn *TCPConnection, size int)

// CloseCallback is the internal (non-user) callback used by TCPServer to
// learn a connection has reached StateDisconnected.
type CloseCallback func(conn *TCPConnection)

// TCPConnection is the per-connection state machine: read/
// write buffering through Buffer, watermark back-pressure, and the
// half-close graceful shutdown handshake.
type TCPConnection struct {
	loop *Loop
	name string

	state  ConnectionState
	socket *Socket

	channel *Channel

	localAddr, peerAddr InetAddress

	input  *Buffer
	output *Buffer

	highWaterMark int
	reading       bool
	highWaterHit  bool

	onConnection    ConnectionCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback
	onHighWaterMark HighWatermarkCallback
	onClose         CloseCallback
}

// NewTCPConnection constructs a connection bound to loop, owning sock.
// connect_established (see ConnectEstablished) must be called on loop's
// owner goroutine before events are delivered.
func NewTCPConnection(loop *Loop, name string, sock *Socket, local, peer InetAddress) *TCPConnection {
	c := &TCPConnection{
		loop:          loop,
		name:          name,
		state:         StateConnecting,
		socket:        sock,
		localAddr:     local,
		peerAddr:      peer,
		input:         NewBuffer(),
		output:        NewBuffer(),
		highWaterMark: DefaultHighWatermark,
		reading:       true,
	}
	c.channel = NewChannel(loop, sock.FD())
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	sock.SetKeepAlive(true)
	return c
}

// Name returns the connection's unique name.
func (c *TCPConnection) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *TCPConnection) State() ConnectionState { return c.state }

// LocalAddr returns the local endpoint.
func (c *TCPConnection) LocalAddr() InetAddress { return c.localAddr }

// PeerAddr returns the remote endpoint.
func (c *TCPConnection) PeerAddr() InetAddress { return c.peerAddr }

// Loop returns the owning Loop.
func (c *TCPConnection) Loop() *Loop { return c.loop }

// SetConnectionCallback installs the up/down callback.
func (c *TCPConnection) SetConnectionCallback(cb ConnectionCallback) { c.onConnection = cb }

// SetMessageCallback installs the message callback.
func (c *TCPConnection) SetMessageCallback(cb MessageCallback) { c.onMessage = cb }

// SetWriteCompleteCallback installs the write-complete callback.
func (c *TCPConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.onWriteComplete = cb }

// SetHighWaterMarkCallback installs the back-pressure callback and
// threshold.
func (c *TCPConnection) SetHighWaterMarkCallback(cb HighWatermarkCallback, mark int) {
	c.onHighWaterMark = cb
	c.highWaterMark = mark
}

// SetCloseCallback installs the internal close callback used by TCPServer.
func (c *TCPConnection) SetCloseCallback(cb CloseCallback) { c.onClose = cb }

// SetTCPNoDelay configures the accepted socket's Nagle behavior.
func (c *TCPConnection) SetTCPNoDelay(on bool) error { return c.socket.SetTCPNoDelay(on) }

// ConnectEstablished transitions connecting -> connected, ties the channel
// to this connection, enables reading, and invokes the up callback. Must be
// called on loop's owner goroutine after the fd has been adopted.
func (c *TCPConnection) ConnectEstablished() {
	c.loop.AssertInLoopThread()
	c.state = StateConnected
	c.channel.Tie(c)
	c.channel.EnableReading()
	if c.onConnection != nil {
		c.onConnection(c, true)
	}
}

// ConnectDestroyed is called by the server after the connection has been
// removed from its map; idempotent with handleClose, and removes the
// channel from the loop.
func (c *TCPConnection) ConnectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.state == StateConnected || c.state == StateDisconnecting {
		c.state = StateDisconnected
		c.channel.DisableAll()
	}
	c.channel.Remove()
}

func (c *TCPConnection) handleRead(receiveTime time.Time) {
	n, err := c.input.ReadFD(c.socket.FD())
	switch {
	case err != nil:
		if err == unix.EAGAIN {
			return
		}
		c.handleErrorWith(err)
	case n > 0:
		if c.onMessage != nil {
			c.onMessage(c, c.input, receiveTime)
		}
	default: // n == 0: peer closed
		c.handleClose()
	}
}

func (c *TCPConnection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}
	n, err := c.socket.Write(c.output.Peek())
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.handleErrorWith(err)
		return
	}
	c.output.Retrieve(n)
	if c.output.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		c.highWaterHit = false
		if c.onWriteComplete != nil {
			cb := c.onWriteComplete
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.state == StateDisconnecting {
			c.socket.ShutdownWrite()
		}
	}
}

func (c *TCPConnection) handleClose() {
	c.loop.AssertInLoopThread()
	if c.state == StateDisconnected {
		return
	}
	c.state = StateDisconnected
	c.channel.DisableAll()

	// tie keeps c reachable for the remainder of this dispatch frame; Go's
	// GC needs no extra action here beyond holding this local reference.
	self := c
	if self.onConnection != nil {
		self.onConnection(self, false)
	}
	if self.onClose != nil {
		self.onClose(self)
	}
}

func (c *TCPConnection) handleError() {
	if err := c.socket.SOError(); err != nil {
		c.handleErrorWith(err)
		return
	}
	c.handleClose()
}

func (c *TCPConnection) handleErrorWith(err error) {
	logFields(nil).WithError(err).Warnf("revent: connection %s I/O error", c.name)
	c.handleClose()
}

// Send queues payload for delivery. Safe from any goroutine: if the caller
// is on the owner loop, it attempts a direct write immediately; otherwise
// the payload is copied into an owned value and forwarded via RunInLoop,
// since the borrow ends at the call site.
func (c *TCPConnection) Send(payload []byte) {
	if c.loop.InLoopThread() {
		c.sendInLoop(payload)
		return
	}
	owned := append([]byte(nil), payload...)
	c.loop.RunInLoop(func() { c.sendInLoop(owned) })
}

// SendString is a convenience wrapper over Send.
func (c *TCPConnection) SendString(s string) { c.Send([]byte(s)) }

func (c *TCPConnection) sendInLoop(payload []byte) {
	if c.state == StateDisconnected {
		logFields(nil).Warnf("revent: send on disconnected connection %s dropped", c.name)
		return
	}

	var remaining []byte = payload
	if !c.channel.IsWriting() && c.output.ReadableBytes() == 0 {
		n, err := c.socket.Write(payload)
		if err != nil && err != unix.EAGAIN {
			c.handleErrorWith(err)
			return
		}
		if err == nil {
			if n == len(payload) {
				if c.onWriteComplete != nil {
					cb := c.onWriteComplete
					c.loop.QueueInLoop(func() { cb(c) })
				}
				return
			}
			remaining = payload[n:]
		}
	}

	c.output.Append(remaining)
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
	if !c.highWaterHit && c.output.ReadableBytes() >= c.highWaterMark {
		c.highWaterHit = true
		if c.onHighWaterMark != nil {
			c.onHighWaterMark(c, c.output.ReadableBytes())
		}
	}
}

// Shutdown half-closes the write side once the output buffer drains,
// transitioning connected -> disconnecting. Safe from any goroutine.
func (c *TCPConnection) Shutdown() {
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *TCPConnection) shutdownInLoop() {
	if c.state != StateConnected {
		return
	}
	c.state = StateDisconnecting
	if !c.channel.IsWriting() {
		c.socket.ShutdownWrite()
	}
}

// ForceClose closes the connection immediately without waiting for the
// output buffer to drain, useful for error paths and test teardown.
func (c *TCPConnection) ForceClose() {
	c.loop.RunInLoop(func() {
		if c.state != StateDisconnected {
			c.handleClose()
		}
	})
}

// StopReading disables the read callback.
func (c *TCPConnection) StopReading() {
	c.loop.RunInLoop(func() {
		if c.reading {
			c.reading = false
			c.channel.DisableReading()
		}
	})
}

// StartReading re-enables the read callback.
func (c *TCPConnection) StartReading() {
	c.loop.RunInLoop(func() {
		if !c.reading {
			c.reading = true
			c.channel.EnableReading()
		}
	})
}
