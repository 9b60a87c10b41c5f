package revent

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBufferAppendPeekConsumeRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.AppendString("hello")
	require.Equal(t, "hello", string(b.Peek()))
	require.Equal(t, "hello", b.RetrieveAsString(5))
	require.Equal(t, 0, b.ReadableBytes())
}

func TestBufferPrependThenAppendRecoversHeaderAndPayload(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.PrependUint32(7))
	b.AppendString("payload")
	require.Equal(t, uint32(7), b.ReadUint32())
	require.Equal(t, "payload", b.RetrieveAllAsString())
}

func TestBufferPrependExhausted(t *testing.T) {
	b := NewBufferSize(16, 2)
	require.NoError(t, b.Prepend([]byte{1, 2}))
	require.ErrorIs(t, b.Prepend([]byte{3}), ErrPrependExhausted)
}

func TestBufferGrowthWithoutReadableSlack(t *testing.T) {
	b := NewBufferSize(8, defaultPrependSize)
	b.AppendString("abcd")
	b.Retrieve(4) // readIndex advances to writeIndex -> RetrieveAll resets to prependCap
	require.Equal(t, defaultPrependSize, b.readIndex)
	require.Equal(t, defaultPrependSize, b.writeIndex)

	b.AppendString("0123456789") // exceeds initial writable(8), but no readable slack -> grow
	require.Equal(t, "0123456789", string(b.Peek()))
}

func TestBufferCompactIdempotent(t *testing.T) {
	b := NewBuffer()
	b.AppendString("xy")
	b.compact()
	before := b.readIndex
	b.compact()
	require.Equal(t, before, b.readIndex)
}

func TestBufferIntRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.AppendUint8(7)
	b.AppendUint16(1234)
	b.AppendUint32(123456789)
	b.AppendUint64(123456789012345)

	require.Equal(t, uint8(7), b.ReadUint8())
	require.Equal(t, uint16(1234), b.ReadUint16())
	require.Equal(t, uint32(123456789), b.ReadUint32())
	require.Equal(t, uint64(123456789012345), b.ReadUint64())
}

func TestBufferReadFDIncreasesReadableByBytesRead(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	_, err = unix.Write(fds[1], []byte("hello"))
	require.NoError(t, err)

	b := NewBuffer()
	before := b.ReadableBytes()
	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, before+n, b.ReadableBytes())
	require.Equal(t, "hello", string(b.Peek()))
}

func TestBufferReadFDWithZeroWritableSpaceDoesNotPanic(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = unix.Write(fds[1], payload)
	require.NoError(t, err)

	b := NewBufferSize(0, defaultPrependSize)
	require.Equal(t, 0, b.WritableBytes())

	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, b.Peek())
}

func TestBufferByteOrderRoundTripProperty(t *testing.T) {
	samples := []int32{0, 1, -1, 1 << 30, -(1 << 30), 2147483647, -2147483648}
	for _, x := range samples {
		b := NewBuffer()
		b.AppendUint32(uint32(x))
		got := int32(b.PeekUint32())
		require.Equal(t, x, got)
	}
}
