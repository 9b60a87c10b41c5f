//go:build linux

package revent

import "golang.org/x/sys/unix"

// TCPInfo fetches the kernel's TCP_INFO diagnostics for the socket (RTT,
// congestion window, retransmit counts, etc.), alongside SOError.
func (s *Socket) TCPInfo() (*unix.TCPInfo, error) {
	return unix.GetsockoptTCPInfo(s.fd, unix.IPPROTO_TCP, unix.TCP_INFO)
}
