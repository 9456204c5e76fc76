package trace

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Hooks is the diagnostics surface of the transport. The core never
// touches a global logger — callers that want visibility inject hooks,
// callers that don't pass the zero value and hear nothing.
//
// Every field may be nil. Hooks are invoked synchronously from the
// socket's own call path, so they must be cheap and must not call back
// into the socket.
type Hooks struct {
	// OnRetransmit fires each time an unacknowledged packet is re-sent.
	OnRetransmit func(dest net.Addr, seq uint32)

	// OnStaleAck fires when an acknowledgment arrives for a sequence
	// number that is no longer tracked — a late or duplicate ack.
	// Harmless, but worth seeing when debugging lossy links.
	OnStaleAck func(src net.Addr, ack uint32)

	// OnDesync fires when an acknowledgment names a sequence number
	// beyond anything in flight. The peers disagree about connection
	// state; the same condition is also surfaced as an error.
	OnDesync func(src net.Addr, ack uint32)
}

// LogrusHooks returns Hooks that report through the given logrus logger.
// Retransmits and stale acks are normal lossy-network noise and log at
// debug; a desync means the peers disagree and logs at warn.
func LogrusHooks(log *logrus.Logger) Hooks {
	return Hooks{
		OnRetransmit: func(dest net.Addr, seq uint32) {
			log.WithFields(logrus.Fields{"dest": dest.String(), "seq": seq}).Debug("retransmit")
		},
		OnStaleAck: func(src net.Addr, ack uint32) {
			log.WithFields(logrus.Fields{"src": src.String(), "ack": ack}).Debug("stale ack")
		},
		OnDesync: func(src net.Addr, ack uint32) {
			log.WithFields(logrus.Fields{"src": src.String(), "ack": ack}).Warn("ack outside send window")
		},
	}
}
