// Package connection tracks reliable-delivery state for one remote peer:
// the sequence counter, the send window of unacknowledged packets, and
// the bookkeeping that acks and retransmissions run on. It is the single
// source of truth for ordering on the send side.
package connection

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/risa-org/rudp/codec"
	"github.com/risa-org/rudp/packet"
	"github.com/risa-org/rudp/trace"
	"github.com/risa-org/rudp/transport"
)

// DefaultResendInterval is how long an unacknowledged packet waits
// before becoming eligible for retransmission.
const DefaultResendInterval = time.Second

// ErrAckOutOfWindow is returned when an acknowledgment names a sequence
// number beyond anything in flight. An ack for an already-cleared seq is
// a harmless duplicate; an ack for a seq never sent means the peers
// disagree about connection state, and that is surfaced, not swallowed.
var ErrAckOutOfWindow = errors.New("ack outside send window")

// AckFunc is the optional per-packet acknowledgment callback. It is
// owned by its window slot and invoked at most once, then dropped.
type AckFunc func()

// sentPacket is one transmitted-but-unacknowledged reliable packet.
// The encoded bytes are kept so retransmission never re-encodes.
type sentPacket struct {
	time  time.Time // last (re)transmission time
	seq   uint32
	data  []byte
	onAck AckFunc
}

// Connection is the per-peer state machine. Two logical states — idle
// and packets-pending — implicit in window occupancy.
//
// The window is ordered by ascending seq. Acked slots become nil holes;
// holes are pruned from the front only, so the front occupied slot, when
// present, is always the oldest packet in flight and index math against
// its seq stays valid.
//
// Not safe for concurrent use: the socket that owns a connection drives
// it from a single goroutine per tick.
type Connection[T any] struct {
	dest           net.Addr
	codec          codec.Codec[T]
	resendInterval time.Duration
	hooks          trace.Hooks

	seq         uint32 // next sequence number to assign, never reused
	window      []*sentPacket
	retransmits uint64
}

// New creates the state for one remote peer. A resendInterval of 0
// means DefaultResendInterval. Connections are created lazily by the
// socket on first contact with an address — there is no handshake.
func New[T any](dest net.Addr, c codec.Codec[T], resendInterval time.Duration, hooks trace.Hooks) *Connection[T] {
	if resendInterval <= 0 {
		resendInterval = DefaultResendInterval
	}
	return &Connection[T]{
		dest:           dest,
		codec:          c,
		resendInterval: resendInterval,
		hooks:          hooks,
	}
}

// SendMessage wraps msg in a reliable packet with the next sequence
// number, transmits it, records it in the send window stamped with now,
// and advances the counter. Returns the assigned sequence number.
//
// Failure leaves the connection untouched: an encode or transmit error
// must not burn a sequence number or leave a phantom packet in the
// window, otherwise the window's seq arithmetic drifts from what the
// peer actually received.
func (c *Connection[T]) SendMessage(msg T, now time.Time, w transport.Writer, onAck AckFunc) (uint32, error) {
	data, err := packet.Reliable(c.seq, msg).Encode(c.codec)
	if err != nil {
		return 0, err
	}
	if _, err := w.WriteTo(data, c.dest); err != nil {
		return 0, fmt.Errorf("send seq %d to %s: %w", c.seq, c.dest, err)
	}

	c.window = append(c.window, &sentPacket{time: now, seq: c.seq, data: data, onAck: onAck})
	seq := c.seq
	c.seq++
	return seq, nil
}

// Acknowledge clears the window slot for acked and fires its callback.
//
// Three outcomes:
//   - acked is tracked: the callback (if any) runs exactly once and the
//     slot becomes a hole. Acking it again later is a no-op.
//   - acked is no longer tracked — empty window, below the front, or a
//     slot already holed: tolerated as a late/duplicate ack, reported
//     through OnStaleAck only.
//   - acked is beyond the back of the window: ErrAckOutOfWindow. The
//     peer acknowledged something never sent; that is desynchronization.
func (c *Connection[T]) Acknowledge(acked uint32) error {
	c.pruneWindow()

	if len(c.window) == 0 {
		c.staleAck(acked)
		return nil
	}

	first := c.window[0].seq
	if acked < first {
		// already acked and pruned
		c.staleAck(acked)
		return nil
	}

	index := int(acked - first)
	if index >= len(c.window) {
		if c.hooks.OnDesync != nil {
			c.hooks.OnDesync(c.dest, acked)
		}
		return fmt.Errorf("%w: ack %d, window covers [%d, %d]",
			ErrAckOutOfWindow, acked, first, first+uint32(len(c.window))-1)
	}

	slot := c.window[index]
	if slot == nil {
		// hole — this seq was acked out of order earlier
		c.staleAck(acked)
		return nil
	}

	if slot.onAck != nil {
		slot.onAck()
		slot.onAck = nil
	}
	c.window[index] = nil
	c.pruneWindow()
	return nil
}

// Resend retransmits every packet whose resend interval has elapsed at
// now, re-stamping each so an immediate second sweep sends nothing.
// Returns the number of packets retransmitted.
//
// Sends are time-ordered, so the scan stops at the first occupied slot
// that is not yet due — the sweep costs proportional to what is actually
// due, not the window size.
func (c *Connection[T]) Resend(now time.Time, w transport.Writer) (int, error) {
	c.pruneWindow()

	sent := 0
	for _, sp := range c.window {
		if sp == nil {
			continue
		}
		if now.Sub(sp.time) < c.resendInterval {
			break
		}
		sp.time = now
		if _, err := w.WriteTo(sp.data, c.dest); err != nil {
			return sent, fmt.Errorf("resend seq %d to %s: %w", sp.seq, c.dest, err)
		}
		c.retransmits++
		if c.hooks.OnRetransmit != nil {
			c.hooks.OnRetransmit(c.dest, sp.seq)
		}
		sent++
	}
	return sent, nil
}

// UnwrapMessage is the receive-side dispatcher for one decoded packet
// from this peer. ok reports whether msg carries a payload for the
// caller — ack packets are pure bookkeeping and yield ok == false.
//
// A reliable packet is acknowledged immediately, once per receipt.
// Redelivered duplicates produce duplicate acks, which is safe: the
// sender treats a stale ack as a no-op.
func (c *Connection[T]) UnwrapMessage(p packet.Packet[T], w transport.Writer) (msg T, ok bool, err error) {
	var zero T
	switch p.Kind {
	case packet.KindUnreliable:
		return p.Msg, true, nil

	case packet.KindReliable:
		ack, err := packet.Ack[T](p.Seq).Encode(c.codec)
		if err != nil {
			return zero, false, err
		}
		if _, err := w.WriteTo(ack, c.dest); err != nil {
			return zero, false, fmt.Errorf("ack seq %d to %s: %w", p.Seq, c.dest, err)
		}
		return p.Msg, true, nil

	case packet.KindAck:
		return zero, false, c.Acknowledge(p.Seq)
	}
	return zero, false, fmt.Errorf("unknown packet kind %d", p.Kind)
}

// pruneWindow pops leading holes so the front slot, if any, is occupied.
// This is what keeps the front seq meaningful for index math and bounds
// window memory to packets actually in flight.
func (c *Connection[T]) pruneWindow() {
	i := 0
	for i < len(c.window) && c.window[i] == nil {
		i++
	}
	if i > 0 {
		c.window = c.window[i:]
	}
}

func (c *Connection[T]) staleAck(acked uint32) {
	if c.hooks.OnStaleAck != nil {
		c.hooks.OnStaleAck(c.dest, acked)
	}
}

// Dest returns the remote address this connection tracks.
func (c *Connection[T]) Dest() net.Addr { return c.dest }

// NextSeq returns the sequence number the next reliable send will use.
func (c *Connection[T]) NextSeq() uint32 { return c.seq }

// InFlight counts packets sent but not yet acknowledged.
func (c *Connection[T]) InFlight() int {
	n := 0
	for _, sp := range c.window {
		if sp != nil {
			n++
		}
	}
	return n
}

// Retransmits returns how many retransmissions this connection has
// performed over its lifetime. Observability only.
func (c *Connection[T]) Retransmits() uint64 { return c.retransmits }
