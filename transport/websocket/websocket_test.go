package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/risa-org/rudp/transport"
	"nhooyr.io/websocket"
)

// bridgePair creates a connected client/server pair using an in-process
// HTTP test server that upgrades to WebSocket.
func bridgePair(t *testing.T) (server *Conn, client *Conn) {
	t.Helper()

	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("server accept failed: %v", err)
			return
		}
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}

	server = New(<-serverConnCh, Addr("server"), Addr("client"))
	client = New(clientConn, Addr("client"), Addr("server"))
	t.Cleanup(func() { server.Close(); client.Close() })
	return server, client
}

func TestFrameRoundTrip(t *testing.T) {
	server, client := bridgePair(t)

	if _, err := client.WriteTo([]byte("over websocket"), Addr("server")); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, src, err := server.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if string(buf[:n]) != "over websocket" {
		t.Errorf("expected 'over websocket', got %q", buf[:n])
	}
	if src.String() != "client" {
		t.Errorf("expected source 'client', got %s", src)
	}
}

func TestMultipleFramesKeepBoundaries(t *testing.T) {
	server, client := bridgePair(t)

	for _, payload := range []string{"one", "two", "three"} {
		if _, err := client.WriteTo([]byte(payload), Addr("server")); err != nil {
			t.Fatalf("WriteTo %q failed: %v", payload, err)
		}
	}

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	for _, want := range []string{"one", "two", "three"} {
		n, _, err := server.ReadFrom(buf)
		if err != nil {
			t.Fatalf("ReadFrom failed: %v", err)
		}
		if string(buf[:n]) != want {
			t.Errorf("expected %q, got %q", want, buf[:n])
		}
	}
}

func TestWriteToWrongPeerRejected(t *testing.T) {
	_, client := bridgePair(t)

	if _, err := client.WriteTo([]byte("x"), Addr("stranger")); err == nil {
		t.Error("expected error sending to a non-peer address, got nil")
	}
}

func TestReadDeadlineIsTimeout(t *testing.T) {
	server, _ := bridgePair(t)

	server.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	buf := make([]byte, 64)
	_, _, err := server.ReadFrom(buf)
	if !transport.IsTimeout(err) {
		t.Errorf("expected a timeout error, got: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, _ := bridgePair(t)

	server.Close()
	server.Close()
	server.Close()
}
