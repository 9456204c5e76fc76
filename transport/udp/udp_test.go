package udp

import (
	"testing"
	"time"

	"github.com/risa-org/rudp/transport"
)

func TestListenAndRoundTrip(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()

	b, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer b.Close()

	if _, err := a.WriteTo([]byte("over loopback"), b.LocalAddr()); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, src, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if string(buf[:n]) != "over loopback" {
		t.Errorf("expected 'over loopback', got %q", buf[:n])
	}
	if src.String() != a.LocalAddr().String() {
		t.Errorf("expected source %s, got %s", a.LocalAddr(), src)
	}
}

func TestListenRejectsBadAddress(t *testing.T) {
	if _, err := Listen("not an address"); err == nil {
		t.Error("expected error for unparseable address, got nil")
	}
}

func TestListenRejectsPortInUse(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()

	if _, err := Listen(a.LocalAddr().String()); err == nil {
		t.Error("expected bind error on a port already in use, got nil")
	}
}

func TestReadDeadlineIsTimeout(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()

	a.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = a.ReadFrom(buf)
	if !transport.IsTimeout(err) {
		t.Errorf("expected a timeout error, got: %v", err)
	}
}
