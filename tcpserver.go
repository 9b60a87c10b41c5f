package revent

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TCPServer owns an Acceptor and a loopPool of worker loops, round-robin
// dispatching accepted connections to workers.
type TCPServer struct {
	loop     *Loop // the accept loop
	acceptor *Acceptor
	pool     *loopPool
	addr     InetAddress
	name     string

	mu          sync.Mutex
	connections map[string]*TCPConnection
	nextConnID  int64

	started int32

	reusePort bool
	noDelay   bool
	keepAlive bool

	highWaterMark int

	onConnection    ConnectionCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback
	onHighWaterMark HighWatermarkCallback
}

// NewTCPServer constructs a server bound to addr on loop (the accept loop).
func NewTCPServer(loop *Loop, name string, addr InetAddress) (*TCPServer, error) {
	acceptor, err := NewAcceptor(loop, addr, false)
	if err != nil {
		return nil, err
	}
	s := &TCPServer{
		loop:          loop,
		acceptor:      acceptor,
		pool:          newLoopPool(loop),
		addr:          addr,
		name:          name,
		connections:   make(map[string]*TCPConnection),
		keepAlive:     true,
		highWaterMark: DefaultHighWatermark,
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

// SetReusePort records the SO_REUSEPORT setting on the server. The
// listening socket is created by NewTCPServer without SO_REUSEPORT, and
// this setting is not applied to it afterwards.
func (s *TCPServer) SetReusePort(on bool) { s.reusePort = on }

// SetTCPNoDelay configures whether accepted connections disable Nagle.
func (s *TCPServer) SetTCPNoDelay(on bool) { s.noDelay = on }

// SetKeepAlive configures whether accepted connections enable SO_KEEPALIVE
// (default on).
func (s *TCPServer) SetKeepAlive(on bool) { s.keepAlive = on }

// SetHighWaterMark sets the default back-pressure threshold for every
// connection this server accepts.
func (s *TCPServer) SetHighWaterMark(n int) { s.highWaterMark = n }

// SetConnectionCallback installs the up/down callback applied to every
// accepted connection.
func (s *TCPServer) SetConnectionCallback(cb ConnectionCallback) { s.onConnection = cb }

// SetMessageCallback installs the message callback applied to every
// accepted connection.
func (s *TCPServer) SetMessageCallback(cb MessageCallback) { s.onMessage = cb }

// SetWriteCompleteCallback installs the write-complete callback applied to
// every accepted connection.
func (s *TCPServer) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.onWriteComplete = cb }

// SetHighWaterMarkCallback installs the back-pressure callback applied to
// every accepted connection.
func (s *TCPServer) SetHighWaterMarkCallback(cb HighWatermarkCallback) { s.onHighWaterMark = cb }

// SetThreadInitCallback installs a callback run on each worker loop before
// it starts polling.
func (s *TCPServer) SetThreadInitCallback(cb func(*Loop)) { s.pool.SetThreadInitCallback(cb) }

// Addr returns the bound listen address.
func (s *TCPServer) Addr() (InetAddress, error) { return s.acceptor.Addr() }

// Start spins up numThreads worker loops (0 means the accept loop also
// serves) and begins listening. Idempotent.
func (s *TCPServer) Start(numThreads int) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	if err := s.pool.Start(numThreads); err != nil {
		return err
	}
	s.pool.WaitForAllStarted()
	s.loop.RunInLoop(s.acceptor.Listen)
	return nil
}

// newConnection runs on the accept loop: it picks the next worker loop,
// constructs a TCPConnection, records it in the server's map (mutated only
// from this goroutine, but still mutex-guarded since ConnectionCount and
// Stop read it from arbitrary callers), and posts ConnectEstablished to
// the worker loop.
func (s *TCPServer) newConnection(sock *Socket, peer InetAddress) {
	workerLoop := s.pool.NextLoop()

	id := atomic.AddInt64(&s.nextConnID, 1)
	name := fmt.Sprintf("%s-%s#%d", s.name, s.addr, id)

	local, _ := sock.LocalAddr()
	if s.noDelay {
		sock.SetTCPNoDelay(true)
	}

	conn := NewTCPConnection(workerLoop, name, sock, local, peer)
	// NewTCPConnection enables SO_KEEPALIVE, so turning it off comes after.
	if !s.keepAlive {
		sock.SetKeepAlive(false)
	}
	conn.SetHighWaterMarkCallback(s.onHighWaterMark, s.highWaterMark)
	conn.SetConnectionCallback(s.onConnection)
	conn.SetMessageCallback(s.onMessage)
	conn.SetWriteCompleteCallback(s.onWriteComplete)
	conn.SetCloseCallback(s.removeConnection)

	s.mu.Lock()
	s.connections[name] = conn
	s.mu.Unlock()

	workerLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is TCPConnection's internal close callback: it erases
// the name from the server's map on the accept loop, then posts
// ConnectDestroyed to the connection's worker loop. This two-step removal
// prevents the connection from being destroyed mid-callback.
func (s *TCPServer) removeConnection(conn *TCPConnection) {
	s.loop.RunInLoop(func() {
		s.mu.Lock()
		delete(s.connections, conn.Name())
		s.mu.Unlock()
		conn.Loop().RunInLoop(conn.ConnectDestroyed)
	})
}

// Stop closes every live connection and stops every worker loop.
func (s *TCPServer) Stop() error {
	s.loop.RunInLoop(func() {
		s.acceptor.Close()
	})

	s.mu.Lock()
	conns := make([]*TCPConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ForceClose()
	}

	return s.pool.Stop()
}

// ConnectionCount returns the number of currently tracked connections.
func (s *TCPServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}
