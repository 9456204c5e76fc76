// Package stream bridges a stream connection into the datagram contract,
// so the reliable protocol can run across TCP, a unix socket, or net.Pipe.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Conn implements transport.Conn over a single point-to-point stream.
//
// Wire format for each datagram:
//
//	[4 bytes: length uint32 big-endian][N bytes: datagram]
//
// We define our own framing because a stream has no concept of message
// boundaries — without it, a read might return half a datagram or two
// joined together. The bridge is point-to-point: every write must name
// the one peer, and every read is attributed to it.
type Conn struct {
	conn      net.Conn
	peer      net.Addr
	closeOnce sync.Once
}

// New wraps an established stream connection. The conn must already be
// dialed or accepted. peer is the address reads are attributed to and
// writes must name; nil means conn.RemoteAddr().
func New(conn net.Conn, peer net.Addr) *Conn {
	if peer == nil {
		peer = conn.RemoteAddr()
	}
	return &Conn{conn: conn, peer: peer}
}

// WriteTo frames p and writes it to the stream. addr must be the peer —
// a stream cannot reach anyone else.
func (c *Conn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if addr.String() != c.peer.String() {
		return 0, fmt.Errorf("stream is point-to-point with %s, cannot send to %s", c.peer, addr)
	}

	// one buffer, one Write — keeps the frame contiguous on the stream
	frame := make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(frame, uint32(len(p)))
	copy(frame[4:], p)

	if _, err := c.conn.Write(frame); err != nil {
		return 0, fmt.Errorf("write to %s: %w", c.peer, err)
	}
	return len(p), nil
}

// ReadFrom reads exactly one frame and returns its datagram.
//
// A deadline expiry while waiting for a frame to start is the normal
// timeout case. Expiring mid-frame leaves the stream desynchronized —
// at that point the peer is torn anyway and the conn should be closed.
func (c *Conn) ReadFrom(p []byte) (int, net.Addr, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > len(p) {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds read buffer of %d", n, len(p))
	}
	if _, err := io.ReadFull(c.conn, p[:n]); err != nil {
		return 0, nil, err
	}
	return int(n), c.peer, nil
}

// SetReadDeadline bounds future ReadFrom calls.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// LocalAddr returns the underlying stream's local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Close shuts the stream down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
