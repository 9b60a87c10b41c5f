package revent

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// closedPortAddr reserves a local port, then releases it immediately so
// nothing is listening there — connect attempts against it reliably fail.
func closedPortAddr(t *testing.T) InetAddress {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	ia, err := NewInetAddress("127.0.0.1", addr.Port)
	require.NoError(t, err)
	return ia
}

type connectorSnapshot struct {
	state    connectorState
	delay    time.Duration
	hasTimer bool
	lastErr  error
}

func snapshotConnector(loop *Loop, c *Connector, lastErr *error) connectorSnapshot {
	ch := make(chan connectorSnapshot, 1)
	loop.RunInLoop(func() {
		ch <- connectorSnapshot{c.state, c.retryDelay, c.hasRetryTimer, *lastErr}
	})
	return <-ch
}

func TestConnectorBackoffGrowsAndStopCancelsRetry(t *testing.T) {
	loop := newTestLoop(t)
	runLoopInBackground(t, loop)

	addr := closedPortAddr(t)
	connector := NewConnector(loop, addr)
	connector.SetRetryBounds(15*time.Millisecond, 60*time.Millisecond)

	var gotErr error
	connector.SetErrorCallback(func(err error) { gotErr = err })
	connector.SetNewConnectionCallback(func(sock *Socket, peer InetAddress) {
		sock.Close()
	})

	loop.RunInLoop(connector.Start)

	// poll until at least one retry has been scheduled and the recorded
	// delay has grown past the initial bound, proving exponential back-off.
	deadline := time.Now().Add(2 * time.Second)
	var seen []time.Duration
	for time.Now().Before(deadline) {
		snap := snapshotConnector(loop, connector, &gotErr)
		if snap.hasTimer {
			if len(seen) == 0 || seen[len(seen)-1] != snap.delay {
				seen = append(seen, snap.delay)
			}
		}
		if len(seen) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, len(seen), 2, "expected the retry delay to change at least once")
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	for _, d := range seen {
		require.LessOrEqual(t, d, 60*time.Millisecond)
	}

	connector.Stop()

	snap := snapshotConnector(loop, connector, &gotErr)
	require.False(t, snap.hasTimer)
	require.Equal(t, connectorDisconnected, snap.state)

	// nothing further should fire once stopped.
	time.Sleep(100 * time.Millisecond)
	snap = snapshotConnector(loop, connector, &gotErr)
	require.False(t, snap.hasTimer)
	require.Nil(t, snap.lastErr)
}
