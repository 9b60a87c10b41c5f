package revent

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalHandlerDeliversOnLoopThread(t *testing.T) {
	loop := newTestLoop(t)
	runLoopInBackground(t, loop)

	gotCh := make(chan bool, 1)
	h := NotifySignals(loop, func(sig os.Signal) {
		gotCh <- loop.InLoopThread()
	}, os.Interrupt)
	defer h.Stop()

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(os.Interrupt))

	select {
	case onLoop := <-gotCh:
		require.True(t, onLoop)
	case <-time.After(2 * time.Second):
		t.Fatal("signal callback never fired")
	}
}
