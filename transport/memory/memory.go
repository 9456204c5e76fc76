// Package memory is an in-process datagram network. Endpoints behave
// like UDP sockets — unordered peers, silent drops, read deadlines —
// but everything stays inside one process, which makes loss and
// duplication scriptable. Integration tests run on it; it is also handy
// for single-process simulations.
package memory

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/risa-org/rudp/transport"
)

// queueDepth bounds undelivered datagrams per endpoint. A full queue
// drops, the same way a kernel socket buffer would.
const queueDepth = 256

// Addr is an in-memory endpoint address. Any non-empty string works.
type Addr string

func (a Addr) Network() string { return "mem" }
func (a Addr) String() string  { return string(a) }

type datagram struct {
	data []byte
	from net.Addr
}

// Network is a shared fake network. Create one per test, hang endpoints
// off it, and optionally install a drop filter to script packet loss.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	drop      func(from, to net.Addr) bool
}

// NewNetwork creates an empty network with no loss.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint)}
}

// SetDropFunc installs a filter consulted for every datagram in flight.
// Returning true drops the datagram silently — the sender still sees a
// successful write, exactly like a lossy real network. Pass nil to
// restore lossless delivery.
func (n *Network) SetDropFunc(fn func(from, to net.Addr) bool) {
	n.mu.Lock()
	n.drop = fn
	n.mu.Unlock()
}

// Endpoint returns the endpoint named by addr, creating it on first use.
func (n *Network) Endpoint(addr string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[addr]; ok {
		return ep
	}
	ep := &Endpoint{
		net:    n,
		addr:   Addr(addr),
		queue:  make(chan datagram, queueDepth),
		closed: make(chan struct{}),
	}
	n.endpoints[addr] = ep
	return ep
}

// Endpoint is one in-memory datagram socket. Implements transport.Conn.
type Endpoint struct {
	net  *Network
	addr Addr

	mu       sync.Mutex
	deadline time.Time

	queue     chan datagram
	closed    chan struct{}
	closeOnce sync.Once
}

// WriteTo delivers one datagram to the endpoint at addr. Unknown
// destinations and a full destination queue both drop silently —
// datagram networks do not report delivery failure to the sender.
func (e *Endpoint) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-e.closed:
		return 0, fmt.Errorf("write to %s: %w", addr, transport.ErrClosed)
	default:
	}

	e.net.mu.Lock()
	dst, ok := e.net.endpoints[addr.String()]
	drop := e.net.drop
	e.net.mu.Unlock()

	if drop != nil && drop(e.addr, addr) {
		return len(p), nil
	}
	if !ok {
		return len(p), nil
	}

	// copy — the caller reuses its buffer after we return
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case dst.queue <- datagram{data: buf, from: e.addr}:
	default:
		// destination queue full, drop
	}
	return len(p), nil
}

// ReadFrom reads one datagram, honoring the read deadline. Past-deadline
// calls still drain already-queued datagrams before reporting timeout,
// so a non-blocking sweep sees everything that has arrived.
func (e *Endpoint) ReadFrom(p []byte) (int, net.Addr, error) {
	e.mu.Lock()
	deadline := e.deadline
	e.mu.Unlock()

	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			// poll: deliver what is already here, otherwise time out
			select {
			case dg := <-e.queue:
				return e.deliver(p, dg)
			default:
			}
			select {
			case <-e.closed:
				return 0, nil, transport.ErrClosed
			default:
			}
			return 0, nil, os.ErrDeadlineExceeded
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case dg := <-e.queue:
			return e.deliver(p, dg)
		case <-timer.C:
			return 0, nil, os.ErrDeadlineExceeded
		case <-e.closed:
			return 0, nil, transport.ErrClosed
		}
	}

	select {
	case dg := <-e.queue:
		return e.deliver(p, dg)
	case <-e.closed:
		return 0, nil, transport.ErrClosed
	}
}

func (e *Endpoint) deliver(p []byte, dg datagram) (int, net.Addr, error) {
	if len(dg.data) > len(p) {
		return 0, dg.from, fmt.Errorf("datagram of %d bytes exceeds read buffer of %d", len(dg.data), len(p))
	}
	return copy(p, dg.data), dg.from, nil
}

// SetReadDeadline bounds future ReadFrom calls. Zero time clears it.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	e.mu.Lock()
	e.deadline = t
	e.mu.Unlock()
	return nil
}

// LocalAddr returns the endpoint's address on the fake network.
func (e *Endpoint) LocalAddr() net.Addr { return e.addr }

// Close removes the endpoint from the network and wakes blocked readers.
// Safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.net.mu.Lock()
		delete(e.net.endpoints, string(e.addr))
		e.net.mu.Unlock()
	})
	return nil
}
