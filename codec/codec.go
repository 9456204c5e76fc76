package codec

import "encoding/json"

// Codec serializes application messages for the transport. The transport
// never interprets message contents — "serializable" is the only thing it
// asks of T, and this interface is how that requirement is expressed.
//
// Decode is handed a slice that aliases the socket's receive buffer.
// Implementations must not retain it past the call.
type Codec[T any] interface {
	Encode(msg T) ([]byte, error)
	Decode(data []byte) (T, error)
}

type jsonCodec[T any] struct{}

// JSON returns a Codec backed by encoding/json. It is the default choice
// for struct message types; applications with their own wire format plug
// in their own Codec instead.
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Encode(msg T) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// Bytes is the identity codec for applications whose messages are already
// raw bytes. Decode copies, because the input aliases the receive buffer.
type Bytes struct{}

func (Bytes) Encode(msg []byte) ([]byte, error) {
	return msg, nil
}

func (Bytes) Decode(data []byte) ([]byte, error) {
	msg := make([]byte, len(data))
	copy(msg, data)
	return msg, nil
}
