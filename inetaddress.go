package revent

import (
	"fmt"
	"net"
)

// InetAddress is a thin, formatting-aware wrapper over a resolved TCP
// endpoint, discriminated over IPv4/IPv6.
type InetAddress struct {
	ip   net.IP
	port int
	isV6 bool
}

// NewInetAddress parses host:port (host may be empty for INADDR_ANY) into
// an InetAddress.
func NewInetAddress(host string, port int) (InetAddress, error) {
	var ip net.IP
	if host == "" {
		ip = net.IPv4zero
	} else {
		ip = net.ParseIP(host)
		if ip == nil {
			resolved, err := net.ResolveIPAddr("ip", host)
			if err != nil {
				return InetAddress{}, fmt.Errorf("revent: resolve %q: %w", host, err)
			}
			ip = resolved.IP
		}
	}
	return InetAddress{ip: ip, port: port, isV6: ip.To4() == nil}, nil
}

// FromTCPAddr builds an InetAddress from a resolved *net.TCPAddr, used to
// capture local/peer addresses off an accepted or connected socket.
func FromTCPAddr(addr *net.TCPAddr) InetAddress {
	if addr == nil {
		return InetAddress{}
	}
	return InetAddress{ip: addr.IP, port: addr.Port, isV6: addr.IP.To4() == nil}
}

// IP returns the address's IP.
func (a InetAddress) IP() net.IP { return a.ip }

// Port returns the address's port.
func (a InetAddress) Port() int { return a.port }

// IsV6 reports whether this address is an IPv6 address.
func (a InetAddress) IsV6() bool { return a.isV6 }

// TCPAddr converts to the standard library's representation for use with
// net.Dial/net.Listen style APIs that still need it at the boundary.
func (a InetAddress) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.ip, Port: a.port}
}

// String renders "ip:port", matching muduo's InetAddress::toIpPort.
func (a InetAddress) String() string {
	return net.JoinHostPort(a.ip.String(), fmt.Sprintf("%d", a.port))
}
