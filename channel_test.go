package revent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelDispatchOrderCloseBeforeOthers(t *testing.T) {
	l := newTestLoop(t)
	ch := NewChannel(l, -1)
	var fired []string
	ch.SetCloseCallback(func() { fired = append(fired, "close") })
	ch.SetErrorCallback(func() { fired = append(fired, "error") })
	ch.SetReadCallback(func(time.Time) { fired = append(fired, "read") })
	ch.SetWriteCallback(func() { fired = append(fired, "write") })

	ch.SetRevents(eventHangup | EventWritable) // hangup w/o readable: close wins, nothing else fires
	ch.HandleEvent(time.Now())
	require.Equal(t, []string{"close"}, fired)
}

func TestChannelDispatchErrorBeforeRead(t *testing.T) {
	l := newTestLoop(t)
	ch := NewChannel(l, -1)
	var fired []string
	ch.SetErrorCallback(func() { fired = append(fired, "error") })
	ch.SetReadCallback(func(time.Time) { fired = append(fired, "read") })

	ch.SetRevents(eventError | EventReadable)
	ch.HandleEvent(time.Now())
	require.Equal(t, []string{"error"}, fired)
}

func TestChannelDispatchReadThenWrite(t *testing.T) {
	l := newTestLoop(t)
	ch := NewChannel(l, -1)
	var fired []string
	ch.SetReadCallback(func(time.Time) { fired = append(fired, "read") })
	ch.SetWriteCallback(func() { fired = append(fired, "write") })

	ch.SetRevents(EventReadable | EventWritable)
	ch.HandleEvent(time.Now())
	require.Equal(t, []string{"read", "write"}, fired)
}

func TestChannelHangupWithReadableStillFiresRead(t *testing.T) {
	l := newTestLoop(t)
	ch := NewChannel(l, -1)
	var fired []string
	ch.SetCloseCallback(func() { fired = append(fired, "close") })
	ch.SetReadCallback(func(time.Time) { fired = append(fired, "read") })

	ch.SetRevents(eventHangup | EventReadable)
	ch.HandleEvent(time.Now())
	require.Equal(t, []string{"read"}, fired)
}

func TestChannelEnableDisableUpdatesEvents(t *testing.T) {
	l := newTestLoop(t)
	ch := NewChannel(l, -1)
	require.True(t, ch.IsNoneEvent())
	ch.EnableReading()
	require.True(t, ch.IsReading())
	ch.EnableWriting()
	require.True(t, ch.IsWriting())
	ch.DisableWriting()
	require.False(t, ch.IsWriting())
	ch.DisableAll()
	require.True(t, ch.IsNoneEvent())
}
