package revent

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEchoServerSingleMessage(t *testing.T) {
	loop := newTestLoop(t)
	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)

	server, err := NewTCPServer(loop, "echo", addr)
	require.NoError(t, err)

	var mu sync.Mutex
	var upCount, downCount, msgCount, writeCompleteCount int
	var received string
	allDone := make(chan struct{})

	server.SetConnectionCallback(func(conn *TCPConnection, up bool) {
		mu.Lock()
		defer mu.Unlock()
		if up {
			upCount++
		} else {
			downCount++
			if downCount == 1 {
				close(allDone)
			}
		}
	})
	server.SetMessageCallback(func(conn *TCPConnection, input *Buffer, _ time.Time) {
		mu.Lock()
		msgCount++
		received += input.RetrieveAllAsString()
		mu.Unlock()
		conn.SendString(received)
	})
	server.SetWriteCompleteCallback(func(conn *TCPConnection) {
		mu.Lock()
		writeCompleteCount++
		mu.Unlock()
	})

	require.NoError(t, server.Start(0))
	runLoopInBackground(t, loop)

	boundAddr, err := server.Addr()
	require.NoError(t, err)

	conn, err := net.Dial("tcp", boundAddr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	conn.Close()

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never went down")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, upCount)
	require.Equal(t, 1, msgCount)
	require.GreaterOrEqual(t, writeCompleteCount, 1)
	require.Equal(t, 1, downCount)
	require.Equal(t, "hello", received)
}

// TestBackPressureHighWatermark exercises TCPConnection's Send-side
// back-pressure: as soon as a connection is up, the server sends a payload
// far larger than the configured watermark to a client that does not read
// it, so the
// connection's output Buffer piles up past the threshold.
func TestBackPressureHighWatermark(t *testing.T) {
	loop := newTestLoop(t)
	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)

	server, err := NewTCPServer(loop, "bp", addr)
	require.NoError(t, err)
	server.SetHighWaterMark(16)

	var mu sync.Mutex
	var hit bool
	var maxSize int
	hitCh := make(chan struct{}, 1)
	drainedCh := make(chan struct{}, 1)

	bigPayload := make([]byte, 4*1024*1024)

	server.SetConnectionCallback(func(conn *TCPConnection, up bool) {
		if up {
			conn.Send(bigPayload)
		}
	})
	server.SetMessageCallback(func(conn *TCPConnection, input *Buffer, _ time.Time) {
		input.RetrieveAll()
	})
	server.SetHighWaterMarkCallback(func(conn *TCPConnection, size int) {
		mu.Lock()
		defer mu.Unlock()
		if !hit {
			hit = true
			hitCh <- struct{}{}
		}
		if size > maxSize {
			maxSize = size
		}
	})
	server.SetWriteCompleteCallback(func(conn *TCPConnection) {
		select {
		case drainedCh <- struct{}{}:
		default:
		}
	})

	require.NoError(t, server.Start(0))
	runLoopInBackground(t, loop)

	boundAddr, err := server.Addr()
	require.NoError(t, err)
	conn, err := net.Dial("tcp", boundAddr.String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-hitCh:
	case <-time.After(3 * time.Second):
		t.Fatal("high watermark callback never fired")
	}

	// drain the client side so the server's output buffer can empty and
	// write_complete can fire.
	go func() {
		buf := make([]byte, 64*1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-drainedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("write_complete never fired after draining")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, hit)
	require.GreaterOrEqual(t, maxSize, 16)
}
