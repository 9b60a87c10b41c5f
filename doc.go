// Package revent implements a single-threaded reactor event loop in the
// muduo/libevent lineage: a pluggable readiness backend, a min-heap timer
// queue, a cross-thread wakeup primitive, a prepend-aware growable byte
// buffer, and atop those a TCP connection state machine with watermark
// back-pressure and a thread-pool TCP server.
//
// Every object (Channel, Loop, Timer, TCPConnection) is owned by exactly one
// goroutine-pinned Loop; cross-thread interaction happens only through
// Loop.RunInLoop / Loop.QueueInLoop / Loop.Wakeup /
// Loop.CancelFromAnyGoroutine / Loop.Quit and TCPConnection.Send, which are
// safe to call from any goroutine.
package revent
