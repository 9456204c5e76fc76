// Package udp binds the real datagram endpoints the transport is built
// for. *net.UDPConn already satisfies transport.Conn — this package only
// owns the bind step and its error reporting.
package udp

import (
	"fmt"
	"net"
)

// Listen binds a UDP endpoint on addr, e.g. ":7500" or "127.0.0.1:0".
// Port 0 asks the OS for a free port — check LocalAddr() for the result.
// Fails if the address or port is unavailable.
func Listen(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return conn, nil
}
