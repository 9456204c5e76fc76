package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/risa-org/rudp/codec"
)

// MaxPacketSize is the hard ceiling on an encoded packet, in bytes.
// Both sides of the protocol consult this one constant: Encode rejects
// anything bigger, and the socket sizes its receive buffer from it.
// Messages that don't fit are rejected, never fragmented.
const MaxPacketSize = 4096

// Header field sizes on the wire. Everything is big-endian.
const (
	kindSize = 1
	seqSize  = 4
	lenSize  = 4

	ackWireSize        = kindSize + seqSize
	reliableHeaderSize = kindSize + seqSize + lenSize
	unreliableHeader   = kindSize + lenSize
)

// ErrTooLarge is returned when an encoded packet would exceed MaxPacketSize.
// Callers check it with errors.Is() — the wrapped message carries the sizes.
var ErrTooLarge = errors.New("packet exceeds maximum size")

// ErrMalformed is returned when Decode is handed bytes that are not a
// well-formed packet: truncated input, an unknown kind discriminant,
// a length prefix that disagrees with the data, or trailing garbage.
var ErrMalformed = errors.New("malformed packet")

// Kind is the delivery-kind discriminant of a packet.
type Kind uint8

const (
	KindUnreliable Kind = iota // fire-and-forget, no sequence number
	KindReliable               // carries a seq, must be acknowledged
	KindAck                    // acknowledges a seq, carries no payload
)

// Packet wraps exactly one application message in protocol framing.
// T is the application message type — opaque to the transport beyond
// being serializable through a codec.Codec[T].
//
// For KindReliable, Seq is the sender-assigned sequence number.
// For KindAck, Seq names the sequence number being acknowledged.
// For KindUnreliable, Seq is unused and always zero.
type Packet[T any] struct {
	Kind Kind
	Seq  uint32
	Msg  T
}

// Unreliable wraps msg for fire-and-forget delivery.
func Unreliable[T any](msg T) Packet[T] {
	return Packet[T]{Kind: KindUnreliable, Msg: msg}
}

// Reliable wraps msg with a sequence number for acknowledged delivery.
func Reliable[T any](seq uint32, msg T) Packet[T] {
	return Packet[T]{Kind: KindReliable, Seq: seq, Msg: msg}
}

// Ack builds an acknowledgment for the given sequence number.
// Ack packets carry no message payload.
func Ack[T any](ack uint32) Packet[T] {
	return Packet[T]{Kind: KindAck, Seq: ack}
}

// Encode serializes the packet into its wire form:
//
//	unreliable: [kind u8][len u32][payload]
//	reliable:   [kind u8][seq u32][len u32][payload]
//	ack:        [kind u8][ack u32]
//
// The payload is produced by c. Returns ErrTooLarge (wrapped) if the
// encoded packet would exceed MaxPacketSize — the packet is rejected
// whole, never truncated.
func (p Packet[T]) Encode(c codec.Codec[T]) ([]byte, error) {
	switch p.Kind {
	case KindAck:
		buf := make([]byte, ackWireSize)
		buf[0] = byte(KindAck)
		binary.BigEndian.PutUint32(buf[kindSize:], p.Seq)
		return buf, nil

	case KindReliable:
		payload, err := c.Encode(p.Msg)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		total := reliableHeaderSize + len(payload)
		if total > MaxPacketSize {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, total, MaxPacketSize)
		}
		buf := make([]byte, total)
		buf[0] = byte(KindReliable)
		binary.BigEndian.PutUint32(buf[kindSize:], p.Seq)
		binary.BigEndian.PutUint32(buf[kindSize+seqSize:], uint32(len(payload)))
		copy(buf[reliableHeaderSize:], payload)
		return buf, nil

	case KindUnreliable:
		payload, err := c.Encode(p.Msg)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		total := unreliableHeader + len(payload)
		if total > MaxPacketSize {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, total, MaxPacketSize)
		}
		buf := make([]byte, total)
		buf[0] = byte(KindUnreliable)
		binary.BigEndian.PutUint32(buf[kindSize:], uint32(len(payload)))
		copy(buf[unreliableHeader:], payload)
		return buf, nil
	}

	return nil, fmt.Errorf("encode: unknown packet kind %d", p.Kind)
}

// Decode parses one wire-format packet. A datagram holds exactly one
// packet, so the input must be consumed exactly — short input, a bad
// kind discriminant, a lying length prefix, and trailing bytes are all
// ErrMalformed (wrapped). Payload bytes are handed to c; the codec must
// not retain the slice, it aliases the caller's buffer.
func Decode[T any](data []byte, c codec.Codec[T]) (Packet[T], error) {
	var zero Packet[T]
	if len(data) < kindSize {
		return zero, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}

	switch Kind(data[0]) {
	case KindAck:
		if len(data) != ackWireSize {
			return zero, fmt.Errorf("%w: ack packet of %d bytes, want %d", ErrMalformed, len(data), ackWireSize)
		}
		return Ack[T](binary.BigEndian.Uint32(data[kindSize:])), nil

	case KindReliable:
		if len(data) < reliableHeaderSize {
			return zero, fmt.Errorf("%w: truncated reliable header (%d bytes)", ErrMalformed, len(data))
		}
		seq := binary.BigEndian.Uint32(data[kindSize:])
		n := binary.BigEndian.Uint32(data[kindSize+seqSize:])
		if len(data) != reliableHeaderSize+int(n) {
			return zero, fmt.Errorf("%w: length prefix says %d payload bytes, datagram has %d",
				ErrMalformed, n, len(data)-reliableHeaderSize)
		}
		msg, err := c.Decode(data[reliableHeaderSize:])
		if err != nil {
			return zero, fmt.Errorf("decode message: %w", err)
		}
		return Reliable(seq, msg), nil

	case KindUnreliable:
		if len(data) < unreliableHeader {
			return zero, fmt.Errorf("%w: truncated unreliable header (%d bytes)", ErrMalformed, len(data))
		}
		n := binary.BigEndian.Uint32(data[kindSize:])
		if len(data) != unreliableHeader+int(n) {
			return zero, fmt.Errorf("%w: length prefix says %d payload bytes, datagram has %d",
				ErrMalformed, n, len(data)-unreliableHeader)
		}
		msg, err := c.Decode(data[unreliableHeader:])
		if err != nil {
			return zero, fmt.Errorf("decode message: %w", err)
		}
		return Unreliable(msg), nil
	}

	return zero, fmt.Errorf("%w: unknown packet kind %d", ErrMalformed, data[0])
}
