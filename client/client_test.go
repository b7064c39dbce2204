package client

import (
	"context"
	"testing"
	"time"

	"github.com/orbaslabs/peerdrive/internal/mockdaemon"
	"github.com/orbaslabs/peerdrive/internal/rpcbody"
)

func mismatchedInitBody() []byte {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, 2) // major 2, this client only speaks 1.0
	b.PutUint64(2, 0)
	b.PutUint64(3, 4096)
	return b.Bytes()
}

func dialMock(t *testing.T, maxPacketSize uint64) (*Client, *mockdaemon.Conn, func()) {
	t.Helper()
	srv, err := mockdaemon.Listen()
	if err != nil {
		t.Fatalf("mockdaemon.Listen: %v", err)
	}

	connCh := make(chan *mockdaemon.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := srv.Accept()
		if err != nil {
			errCh <- err
			return
		}
		if _, err := c.Handshake(maxPacketSize); err != nil {
			errCh <- err
			return
		}
		connCh <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cl, err := Dial(ctx, Endpoint{Addr: srv.Addr(), Cookie: []byte("cookie")})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case conn := <-connCh:
		return cl, conn, func() { cl.Close(); conn.Close(); srv.Close() }
	case err := <-errCh:
		t.Fatalf("handshake: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
	return nil, nil, nil
}

func TestDialHandshake(t *testing.T) {
	cl, _, cleanup := dialMock(t, 65536)
	defer cleanup()

	if cl.MaxPacketSize() != 65536 {
		t.Fatalf("MaxPacketSize = %d, want 65536", cl.MaxPacketSize())
	}
}

func TestDialVersionMismatchIsFatal(t *testing.T) {
	srv, err := mockdaemon.Listen()
	if err != nil {
		t.Fatalf("mockdaemon.Listen: %v", err)
	}
	defer srv.Close()

	go func() {
		conn, err := srv.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		f, err := conn.ReadFrame()
		if err != nil {
			return
		}
		// Reply with a mismatched major version embedded manually.
		b := mismatchedInitBody()
		_ = conn.Reply(f, b)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = Dial(ctx, Endpoint{Addr: srv.Addr(), Cookie: []byte("c")})
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
}
