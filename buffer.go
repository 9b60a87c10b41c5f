package revent

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// defaultPrependSize is the reserved headroom at the front of every Buffer,
// large enough to hold an 8-byte length header without a copy.
const defaultPrependSize = 8

// initialBufferSize is the writable capacity a freshly constructed Buffer
// starts with, beyond the prepend region.
const initialBufferSize = 1024

// scatterReadScratchSize is the size of the stack-local scratch area used
// by the second iovec in ReadFD, sized to absorb an occasional large
// arrival without growing the buffer itself on every read.
const scatterReadScratchSize = 65536

// Buffer is a growable byte queue with a reserved prepend region, laid out
// like this:
//
//	[ 0 ... prepend region ... readIndex | readable | writeIndex | writable ... cap(buf) ]
type Buffer struct {
	buf        []byte
	readIndex  int
	writeIndex int
	prependCap int
}

// NewBuffer constructs a Buffer with the default prepend region and initial
// capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(initialBufferSize, defaultPrependSize)
}

// NewBufferSize constructs a Buffer with a custom initial writable capacity
// and prepend region size.
func NewBufferSize(initialSize, prependSize int) *Buffer {
	b := &Buffer{
		buf:        make([]byte, prependSize+initialSize),
		readIndex:  prependSize,
		writeIndex: prependSize,
		prependCap: prependSize,
	}
	return b
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writeIndex - b.readIndex }

// WritableBytes returns the number of bytes Append can write without
// growing the backing array.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writeIndex }

// PrependableBytes returns the remaining headroom available to Prepend.
func (b *Buffer) PrependableBytes() int { return b.readIndex }

// Peek returns the readable region without consuming it. The returned slice
// aliases the buffer's backing array and is only valid until the next
// mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readIndex:b.writeIndex]
}

// Retrieve advances the read index by n. If n would consume the entire
// readable region it instead resets both indices to the prepend boundary,
// maximizing future writable space.
func (b *Buffer) Retrieve(n int) {
	if n >= b.ReadableBytes() {
		b.RetrieveAll()
		return
	}
	b.readIndex += n
}

// RetrieveAll resets both indices to the prepend boundary, satisfying the
// invariant read = write = prependCap.
func (b *Buffer) RetrieveAll() {
	b.readIndex = b.prependCap
	b.writeIndex = b.prependCap
}

// RetrieveAsString consumes and returns the first n readable bytes as a new
// string, copying out of the internal buffer.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.readIndex : b.readIndex+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns every readable byte.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// Append copies data onto the writable region, growing as needed: if
// writable plus the slack freed by compacting the
// readable region down to the prepend boundary would fit len(data), compact
// in place; otherwise grow the backing array.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.ensureWritable(len(data))
	n := copy(b.buf[b.writeIndex:], data)
	b.writeIndex += n
}

// AppendString is a convenience wrapper over Append.
func (b *Buffer) AppendString(s string) {
	b.Append([]byte(s))
}

func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes()-b.prependCap >= n {
		b.compact()
		return
	}
	// grow: new capacity is exactly writeIndex + n.
	newBuf := make([]byte, b.writeIndex+n)
	copy(newBuf, b.buf[:b.writeIndex])
	b.buf = newBuf
}

// compact slides the readable region down to the prepend boundary. It is a
// no-op (idempotent) when the readable region is already positioned there.
func (b *Buffer) compact() {
	if b.readIndex == b.prependCap {
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[b.prependCap:], b.buf[b.readIndex:b.writeIndex])
	b.readIndex = b.prependCap
	b.writeIndex = b.prependCap + readable
}

// Prepend writes data into the prepend region, decrementing the read index.
// It returns an error wrapping ErrPrependExhausted if there is not enough
// headroom left.
func (b *Buffer) Prepend(data []byte) error {
	if len(data) > b.PrependableBytes() {
		return errors.Wrapf(ErrPrependExhausted, "need %d have %d", len(data), b.PrependableBytes())
	}
	b.readIndex -= len(data)
	copy(b.buf[b.readIndex:], data)
	return nil
}

// ReadFD performs a scatter read into the buffer's writable region, with a
// second iovec targeting a stack-local scratch area so a single syscall can
// absorb an arrival larger than the current writable space without first
// growing the buffer or querying the socket's receive-queue depth. It
// returns the number of bytes read (0 on EOF) and any error from readv other
// than EINTR, which is retried; EAGAIN is returned to the caller.
func (b *Buffer) ReadFD(fd int) (int, error) {
	var scratch [scatterReadScratchSize]byte
	writable := b.WritableBytes()

	iov := make([]unix.Iovec, 0, 2)
	if writable > 0 {
		iov = append(iov, unix.Iovec{Base: &b.buf[b.writeIndex]})
		iov[len(iov)-1].SetLen(writable)
	}
	iov = append(iov, unix.Iovec{Base: &scratch[0]})
	iov[len(iov)-1].SetLen(len(scratch))

	n, err := readv(fd, iov)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writeIndex += n
	} else {
		b.writeIndex = len(b.buf)
		overflow := n - writable
		b.Append(scratch[:overflow])
	}
	return n, nil
}

// --- fixed-width network byte order accessors -----------------------------

// AppendUint8 appends a single byte.
func (b *Buffer) AppendUint8(v uint8) { b.Append([]byte{v}) }

// AppendUint16 appends v in network byte order.
func (b *Buffer) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint32 appends v in network byte order.
func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint64 appends v in network byte order.
func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.Append(tmp[:])
}

// PeekUint8 reads the first readable byte without consuming it.
func (b *Buffer) PeekUint8() uint8 { return b.Peek()[0] }

// PeekUint16 reads the first two readable bytes as network byte order
// without consuming them.
func (b *Buffer) PeekUint16() uint16 { return binary.BigEndian.Uint16(b.Peek()) }

// PeekUint32 reads the first four readable bytes as network byte order
// without consuming them.
func (b *Buffer) PeekUint32() uint32 { return binary.BigEndian.Uint32(b.Peek()) }

// PeekUint64 reads the first eight readable bytes as network byte order
// without consuming them.
func (b *Buffer) PeekUint64() uint64 { return binary.BigEndian.Uint64(b.Peek()) }

// ReadUint8 consumes and returns the first readable byte.
func (b *Buffer) ReadUint8() uint8 {
	v := b.PeekUint8()
	b.Retrieve(1)
	return v
}

// ReadUint16 consumes and returns the first two readable bytes.
func (b *Buffer) ReadUint16() uint16 {
	v := b.PeekUint16()
	b.Retrieve(2)
	return v
}

// ReadUint32 consumes and returns the first four readable bytes.
func (b *Buffer) ReadUint32() uint32 {
	v := b.PeekUint32()
	b.Retrieve(4)
	return v
}

// ReadUint64 consumes and returns the first eight readable bytes.
func (b *Buffer) ReadUint64() uint64 {
	v := b.PeekUint64()
	b.Retrieve(8)
	return v
}

// PrependUint32 prepends a 4-byte network-byte-order length header, the
// typical use case for the reserved prepend region.
func (b *Buffer) PrependUint32(v uint32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return b.Prepend(tmp[:])
}
