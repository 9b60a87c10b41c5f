package revent

import "time"

// now returns the current monotonic-annotated time. Go's time.Now always
// carries a monotonic reading on platforms that have one, so there is no
// separate "is this clock monotonic" branch to write in the common case;
// the backward-jump detection in Loop is retained anyway to cover the edge
// case of a host whose monotonic reading itself is reset (e.g. certain
// containerized or virtualized clocks), which time.Now cannot detect on
// your behalf.
func now() time.Time {
	return time.Now()
}
