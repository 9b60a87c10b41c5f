package revent

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TCPClient wraps a Connector and the TCPConnection it eventually produces,
// with automatic reconnect-on-disconnect when enabled by SetRetry (off by
// default) — a direct, small port of
// muduo/net/TcpClient.cc.
type TCPClient struct {
	loop      *Loop
	connector *Connector
	name      string

	mu      sync.Mutex
	conn    *TCPConnection
	retry   bool
	connect bool
	nextID  int64

	onConnection    ConnectionCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback
}

// NewTCPClient constructs a client targeting addr.
func NewTCPClient(loop *Loop, name string, addr InetAddress) *TCPClient {
	c := &TCPClient{
		loop:      loop,
		connector: NewConnector(loop, addr),
		name:      name,
		connect:   true,
	}
	c.connector.SetNewConnectionCallback(c.newConnection)
	c.connector.SetErrorCallback(func(err error) {
		logFields(nil).WithError(err).Errorf("revent: client %s hard connect failure", c.name)
	})
	return c
}

// SetRetry toggles automatic reconnect once a connection reaches "down".
func (c *TCPClient) SetRetry(on bool) {
	c.mu.Lock()
	c.retry = on
	c.mu.Unlock()
}

// SetConnectionCallback installs the up/down callback.
func (c *TCPClient) SetConnectionCallback(cb ConnectionCallback) { c.onConnection = cb }

// SetMessageCallback installs the message callback.
func (c *TCPClient) SetMessageCallback(cb MessageCallback) { c.onMessage = cb }

// SetWriteCompleteCallback installs the write-complete callback.
func (c *TCPClient) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.onWriteComplete = cb }

// Connect starts the underlying Connector.
func (c *TCPClient) Connect() {
	c.mu.Lock()
	c.connect = true
	c.mu.Unlock()
	c.loop.RunInLoop(c.connector.Start)
}

// Connection returns the live TCPConnection, or nil if not currently
// connected.
func (c *TCPClient) Connection() *TCPConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *TCPClient) newConnection(sock *Socket, peer InetAddress) {
	c.mu.Lock()
	id := atomic.AddInt64(&c.nextID, 1)
	name := fmt.Sprintf("%s#%d", c.name, id)
	c.mu.Unlock()

	local, _ := sock.LocalAddr()
	conn := NewTCPConnection(c.loop, name, sock, local, peer)
	conn.SetConnectionCallback(c.onConnection)
	conn.SetMessageCallback(c.onMessage)
	conn.SetWriteCompleteCallback(c.onWriteComplete)
	conn.SetCloseCallback(c.removeConnection)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.ConnectEstablished()
}

func (c *TCPClient) removeConnection(conn *TCPConnection) {
	c.mu.Lock()
	c.conn = nil
	shouldRetry := c.retry && c.connect
	c.mu.Unlock()

	conn.ConnectDestroyed()

	if shouldRetry {
		logFields(nil).Infof("revent: client %s reconnecting", c.name)
		c.connector.Start()
	}
}

// Disconnect stops retrying and force-closes the live connection, if any.
func (c *TCPClient) Disconnect() {
	c.mu.Lock()
	c.connect = false
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.ForceClose()
	}
}

// Stop cancels any in-flight connect attempt and disconnects.
func (c *TCPClient) Stop() {
	c.mu.Lock()
	c.connect = false
	c.mu.Unlock()
	c.connector.Stop()
	c.Disconnect()
}
