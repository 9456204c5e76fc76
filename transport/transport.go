package transport

import (
	"errors"
	"net"
	"os"
	"time"
)

// ErrClosed is returned when you try to use a closed endpoint.
// Named errors like this let callers check the exact cause with
// errors.Is() instead of comparing raw strings.
var ErrClosed = errors.New("transport closed")

// Writer is the send half of a datagram endpoint. Connections only ever
// need this half — they transmit packets and acks but never read.
type Writer interface {
	// WriteTo sends one datagram to addr. Datagram semantics: the whole
	// of p goes out in one unit or the call fails.
	WriteTo(p []byte, addr net.Addr) (n int, err error)
}

// Conn is the full datagram endpoint contract the socket runs on.
// It is deliberately a subset of net.PacketConn, so *net.UDPConn
// satisfies it directly; the other implementations in the subpackages
// (memory, stream, websocket) bridge non-UDP links into the same shape.
//
// A read past the deadline must fail with an error that IsTimeout
// recognizes — that is the socket's "no more messages right now" signal,
// not a failure.
type Conn interface {
	Writer

	// ReadFrom reads one whole datagram into p and reports its source.
	ReadFrom(p []byte) (n int, addr net.Addr, err error)

	// SetReadDeadline bounds future ReadFrom calls. The zero time means
	// no deadline.
	SetReadDeadline(t time.Time) error

	// LocalAddr returns the endpoint's own address.
	LocalAddr() net.Addr

	// Close shuts the endpoint down. Safe to call more than once.
	Close() error
}

// IsTimeout reports whether err is a read-deadline expiry or would-block
// condition — the normal end-of-available-data signal, never a failure.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
