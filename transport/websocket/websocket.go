// Package websocket bridges a WebSocket connection into the datagram
// contract. WebSocket already has message boundaries built in, so unlike
// the stream bridge no extra framing is needed — each binary frame
// carries exactly one datagram. Useful when UDP is blocked and the
// protocol has to tunnel through an HTTP-friendly hop.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/risa-org/rudp/transport"
	"nhooyr.io/websocket"
)

// Addr names a WebSocket endpoint, typically its URL.
type Addr string

func (a Addr) Network() string { return "websocket" }
func (a Addr) String() string  { return string(a) }

// Conn implements transport.Conn over a single WebSocket connection.
// Like the stream bridge it is point-to-point: writes must name the one
// peer, reads are attributed to it.
type Conn struct {
	conn  *websocket.Conn
	peer  net.Addr
	local net.Addr

	mu       sync.Mutex
	deadline time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New wraps an existing *websocket.Conn — dialing or accepting happens
// outside, the same on both ends. peer is the address datagrams are
// attributed to; local names this side in LocalAddr.
func New(conn *websocket.Conn, local, peer net.Addr) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{conn: conn, peer: peer, local: local, ctx: ctx, cancel: cancel}
}

// Dial connects to a WebSocket server at url and wraps the result.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn, Addr("client"), Addr(url)), nil
}

// WriteTo sends p as one binary frame. addr must be the peer.
func (c *Conn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if addr.String() != c.peer.String() {
		return 0, fmt.Errorf("websocket is point-to-point with %s, cannot send to %s", c.peer, addr)
	}
	if err := c.conn.Write(c.ctx, websocket.MessageBinary, p); err != nil {
		return 0, fmt.Errorf("write to %s: %w", c.peer, c.classify(err))
	}
	return len(p), nil
}

// ReadFrom reads one frame. The read deadline is mapped onto the read
// context; expiry surfaces as a timeout, not a failure.
func (c *Conn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	ctx := c.ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(c.ctx, deadline)
		defer cancel()
	}

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, os.ErrDeadlineExceeded
		}
		return 0, nil, c.classify(err)
	}
	if len(data) > len(p) {
		return 0, c.peer, fmt.Errorf("frame of %d bytes exceeds read buffer of %d", len(data), len(p))
	}
	return copy(p, data), c.peer, nil
}

// SetReadDeadline bounds future ReadFrom calls. Zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

// LocalAddr returns this side's name.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// Close shuts the WebSocket down cleanly. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return err
}

// classify maps close conditions onto transport.ErrClosed so callers can
// errors.Is() them. StatusNormalClosure (1000) and StatusGoingAway (1001)
// are both clean closes — implementations and shutdown timing produce
// either code. Context cancellation means we closed it ourselves.
func (c *Conn) classify(err error) error {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure,
		status == websocket.StatusGoingAway,
		c.ctx.Err() != nil:
		return transport.ErrClosed
	default:
		return err
	}
}
