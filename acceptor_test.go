package revent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcceptorEMFILERecoveryReplacesSpareFD exercises handleEMFILE directly
// rather than exhausting the real file-descriptor table (unsafe to do
// inside a shared test process): it checks that recovery closes the old
// spare fd and opens a fresh one, so a subsequent exhaustion can still be
// handled.
func TestAcceptorEMFILERecoveryReplacesSpareFD(t *testing.T) {
	loop := newTestLoop(t)
	addr, err := NewInetAddress("127.0.0.1", 0)
	require.NoError(t, err)

	a, err := NewAcceptor(loop, addr, false)
	require.NoError(t, err)
	defer a.Close()

	oldSpare := a.spareFD
	oldFD := oldSpare.Fd()

	a.handleEMFILE()

	require.NotNil(t, a.spareFD)
	require.NotEqual(t, oldFD, a.spareFD.Fd())

	// the new spare fd must still be a live, usable file.
	st, err := a.spareFD.Stat()
	require.NoError(t, err)
	require.NotNil(t, st)

	// the old spare fd was closed by handleEMFILE; closing it again must
	// report it as already closed rather than silently succeeding.
	require.Error(t, oldSpare.Close())
}
