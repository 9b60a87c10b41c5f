//go:build !linux

package revent

import "errors"

// TCPInfo is unavailable outside Linux: x/sys/unix only wires
// GetsockoptTCPInfo up on linux, and the BSD/Darwin TCP_INFO sockopt layout
// differs enough that it isn't a drop-in substitute.
func (s *Socket) TCPInfo() (*struct{}, error) {
	return nil, errors.New("revent: TCPInfo unsupported on this platform")
}
