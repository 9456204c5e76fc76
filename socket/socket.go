// Package socket is the caller-facing front of the transport: one
// datagram endpoint, a table of per-peer connections, and the four
// operations the rest of an application consumes — send, send-reliable,
// receive, and the periodic update that drives retransmission.
package socket

import (
	"errors"
	"fmt"
	"iter"
	"net"
	"time"

	"github.com/risa-org/rudp/codec"
	"github.com/risa-org/rudp/connection"
	"github.com/risa-org/rudp/packet"
	"github.com/risa-org/rudp/trace"
	"github.com/risa-org/rudp/transport"
	"github.com/risa-org/rudp/transport/udp"
)

// DefaultRecvTimeout bounds a blocking Recv when the config leaves it zero.
const DefaultRecvTimeout = 3 * time.Second

// bufferHeadroom pads the receive buffer past MaxPacketSize so an
// oversized datagram arrives intact and fails in Decode with a real
// error instead of being silently truncated by the read.
const bufferHeadroom = 64

// drainPollInterval is the read deadline used per probe by Messages.
// A deadline already in the past makes the runtime fail the read before
// even looking at the socket, queued datagrams included — so each probe
// gets a millisecond, which returns immediately whenever data is queued.
const drainPollInterval = time.Millisecond

// Config is the caller-supplied tuning for a Socket. The zero value
// works: zero durations take the package defaults, zero Hooks is silent.
type Config struct {
	// ResendInterval is how long an unacknowledged packet waits before
	// the next Update retransmits it. 0 means
	// connection.DefaultResendInterval.
	ResendInterval time.Duration

	// RecvTimeout bounds a blocking Recv. 0 means DefaultRecvTimeout.
	RecvTimeout time.Duration

	// Hooks receives transport diagnostics. Zero value is silent.
	Hooks trace.Hooks
}

// Delivery is one payload-bearing message surfaced by Messages.
type Delivery[T any] struct {
	Src net.Addr
	Msg T
}

// Socket sends and receives messages of type T over a datagram endpoint,
// tracking reliable-delivery state per remote peer. Connections appear
// lazily on first send to or receive from an address — no handshake —
// and live as long as the socket.
//
// The socket is synchronous and single-goroutine by design: it never
// spawns goroutines or sleeps, and Update must be driven by the caller's
// own loop. If the surrounding program adds threads, the whole socket
// goes behind one lock — connection state assumes exclusive access.
type Socket[T any] struct {
	conn  transport.Conn
	codec codec.Codec[T]
	cfg   Config
	conns map[string]*connection.Connection[T]
	buf   []byte
}

// New builds a socket on an already-open endpoint. Any transport.Conn
// works: a *net.UDPConn, or one of the memory/stream/websocket bridges.
func New[T any](conn transport.Conn, c codec.Codec[T], cfg Config) *Socket[T] {
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = connection.DefaultResendInterval
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = DefaultRecvTimeout
	}
	return &Socket[T]{
		conn:  conn,
		codec: c,
		cfg:   cfg,
		conns: make(map[string]*connection.Connection[T]),
		buf:   make([]byte, packet.MaxPacketSize+bufferHeadroom),
	}
}

// Bind opens a UDP socket on addr, e.g. ":7500" or "127.0.0.1:0".
// Fails if the local address or port is unavailable.
func Bind[T any](addr string, c codec.Codec[T], cfg Config) (*Socket[T], error) {
	conn, err := udp.Listen(addr)
	if err != nil {
		return nil, err
	}
	return New(conn, c, cfg), nil
}

// SendTo sends msg unreliably to dest: encode, transmit, forget.
// Unreliable sends bypass connection state entirely.
func (s *Socket[T]) SendTo(msg T, dest net.Addr) error {
	data, err := packet.Unreliable(msg).Encode(s.codec)
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteTo(data, dest); err != nil {
		return fmt.Errorf("send to %s: %w", dest, err)
	}
	return nil
}

// SendReliableTo sends msg to dest with acknowledged delivery and
// returns the assigned sequence number. The packet is retried by Update
// until the peer acks it. onAck, if non-nil, runs exactly once when the
// ack arrives — from inside Recv or Messages, not from a background
// goroutine.
func (s *Socket[T]) SendReliableTo(msg T, dest net.Addr, onAck connection.AckFunc) (uint32, error) {
	return s.connectionFor(dest).SendMessage(msg, time.Now(), s.conn, onAck)
}

// Update sweeps every connection and retransmits packets whose resend
// interval has elapsed at now. Call it once per tick of the surrounding
// loop. A transport error on one connection does not stop the sweep for
// the others; all errors come back joined.
func (s *Socket[T]) Update(now time.Time) error {
	var errs []error
	for _, conn := range s.conns {
		if _, err := conn.Resend(now, s.conn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recv blocks until a payload-bearing message arrives or the receive
// timeout expires. Pure-ack datagrams are processed and skipped
// internally — they never surface as received messages. A timeout comes
// back as an error that transport.IsTimeout recognizes.
func (s *Socket[T]) Recv() (net.Addr, T, error) {
	var zero T
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.RecvTimeout)); err != nil {
		return nil, zero, err
	}
	for {
		src, msg, ok, err := s.readOne()
		if err != nil {
			return nil, zero, err
		}
		if ok {
			return src, msg, nil
		}
	}
}

// Messages drains every message currently available without blocking:
//
//	for d, err := range sock.Messages() { ... }
//
// The sequence ends the moment the underlying read would block. Acks are
// processed and skipped the same way Recv skips them. A decode, desync,
// or transport failure is yielded as the final pair and ends the
// sequence; would-block itself is not an error and is not yielded.
func (s *Socket[T]) Messages() iter.Seq2[Delivery[T], error] {
	return func(yield func(Delivery[T], error) bool) {
		for {
			if err := s.conn.SetReadDeadline(time.Now().Add(drainPollInterval)); err != nil {
				yield(Delivery[T]{}, err)
				return
			}
			src, msg, ok, err := s.readOne()
			if err != nil {
				if !transport.IsTimeout(err) {
					yield(Delivery[T]{}, err)
				}
				return
			}
			if !ok {
				continue
			}
			if !yield(Delivery[T]{Src: src, Msg: msg}, nil) {
				return
			}
		}
	}
}

// readOne reads and routes a single datagram. ok reports whether msg is
// a payload for the caller; acks route into their connection and come
// back ok == false.
func (s *Socket[T]) readOne() (net.Addr, T, bool, error) {
	var zero T
	n, src, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		return nil, zero, false, err
	}
	pkt, err := packet.Decode(s.buf[:n], s.codec)
	if err != nil {
		return nil, zero, false, fmt.Errorf("from %s: %w", src, err)
	}
	msg, ok, err := s.connectionFor(src).UnwrapMessage(pkt, s.conn)
	if err != nil {
		return nil, zero, false, err
	}
	return src, msg, ok, nil
}

// connectionFor returns the connection tracking addr, creating it on
// first contact.
func (s *Socket[T]) connectionFor(addr net.Addr) *connection.Connection[T] {
	key := addr.String()
	if conn, ok := s.conns[key]; ok {
		return conn
	}
	conn := connection.New(addr, s.codec, s.cfg.ResendInterval, s.cfg.Hooks)
	s.conns[key] = conn
	return conn
}

// Pending reports how many reliable packets to dest are still awaiting
// acknowledgment. Zero for peers the socket has never talked to.
func (s *Socket[T]) Pending(dest net.Addr) int {
	if conn, ok := s.conns[dest.String()]; ok {
		return conn.InFlight()
	}
	return 0
}

// MaxPayloadSize returns the module-wide ceiling on an encoded packet.
func (s *Socket[T]) MaxPayloadSize() int { return packet.MaxPacketSize }

// LocalAddr returns the bound endpoint address.
func (s *Socket[T]) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close shuts down the underlying endpoint. In-flight reliable packets
// are abandoned — there is no teardown exchange in this protocol.
func (s *Socket[T]) Close() error { return s.conn.Close() }
