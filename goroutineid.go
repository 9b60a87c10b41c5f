package revent

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns the calling goroutine's runtime id, used only to
// implement Loop's "owner thread" identity check. Go does not expose OS
// thread ids the way the C++
// ancestry's gettid() does, and a goroutine is Go's unit of "one thread of
// control pinned to a Loop" — its runtime id is the correct analogue.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
