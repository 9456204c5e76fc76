package memory

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/risa-org/rudp/transport"
)

func TestDeliverBetweenEndpoints(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	b := n.Endpoint("b")
	defer a.Close()
	defer b.Close()

	if _, err := a.WriteTo([]byte("hello"), Addr("b")); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	buf := make([]byte, 64)
	got, src, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if string(buf[:got]) != "hello" {
		t.Errorf("expected 'hello', got %q", buf[:got])
	}
	if src.String() != "a" {
		t.Errorf("expected source 'a', got %s", src)
	}
}

// TestWriteCopies: the sender reuses its buffer after WriteTo returns,
// so the network must have copied.
func TestWriteCopies(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	b := n.Endpoint("b")
	defer a.Close()
	defer b.Close()

	msg := []byte("original")
	a.WriteTo(msg, Addr("b"))
	copy(msg, "XXXXXXXX")

	buf := make([]byte, 64)
	got, _, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if string(buf[:got]) != "original" {
		t.Errorf("delivered datagram aliases sender buffer: %q", buf[:got])
	}
}

func TestReadDeadlineExpires(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	defer a.Close()

	a.SetReadDeadline(time.Now().Add(20 * time.Millisecond))

	buf := make([]byte, 64)
	_, _, err := a.ReadFrom(buf)
	if err == nil {
		t.Fatal("expected timeout, got datagram")
	}
	if !transport.IsTimeout(err) {
		t.Errorf("expected a timeout error, got: %v", err)
	}
}

// TestExpiredDeadlineStillDrainsQueue: a past deadline must deliver
// datagrams that already arrived — that is what makes a non-blocking
// sweep see everything queued before it concludes "drained".
func TestExpiredDeadlineStillDrainsQueue(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	b := n.Endpoint("b")
	defer a.Close()
	defer b.Close()

	a.WriteTo([]byte("queued"), Addr("b"))
	b.SetReadDeadline(time.Now().Add(-time.Second))

	buf := make([]byte, 64)
	got, _, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("queued datagram should still be readable, got: %v", err)
	}
	if string(buf[:got]) != "queued" {
		t.Errorf("expected 'queued', got %q", buf[:got])
	}

	// queue is now empty — the same expired deadline times out
	if _, _, err := b.ReadFrom(buf); !transport.IsTimeout(err) {
		t.Errorf("expected timeout on empty queue, got: %v", err)
	}
}

// TestDropFunc: a drop filter loses the datagram silently — the sender
// still sees a successful write, like a lossy real network.
func TestDropFunc(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	b := n.Endpoint("b")
	defer a.Close()
	defer b.Close()

	drops := 0
	n.SetDropFunc(func(from, to net.Addr) bool {
		drops++
		return drops == 1 // lose only the first datagram
	})

	if _, err := a.WriteTo([]byte("lost"), Addr("b")); err != nil {
		t.Fatalf("dropped write must still report success, got: %v", err)
	}
	if _, err := a.WriteTo([]byte("delivered"), Addr("b")); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	buf := make([]byte, 64)
	got, _, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if string(buf[:got]) != "delivered" {
		t.Errorf("expected the second datagram, got %q", buf[:got])
	}
}

func TestWriteToUnknownDestinationDropsSilently(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")
	defer a.Close()

	// datagram networks do not report unreachable destinations to senders
	if _, err := a.WriteTo([]byte("void"), Addr("nobody")); err != nil {
		t.Errorf("write to unknown destination should succeed silently, got: %v", err)
	}
}

func TestCloseWakesReaderAndFailsWrites(t *testing.T) {
	n := NewNetwork()
	a := n.Endpoint("a")

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, _, err := a.ReadFrom(buf)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Close()
	a.Close() // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrClosed) {
			t.Errorf("expected ErrClosed from blocked read, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked read to wake")
	}

	if _, err := a.WriteTo([]byte("x"), Addr("b")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed writing on closed endpoint, got: %v", err)
	}
}
