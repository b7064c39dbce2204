package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/internal/mockdaemon"
)

func dialForTest(t *testing.T) (*client.Client, func()) {
	t.Helper()
	srv, err := mockdaemon.Listen()
	if err != nil {
		t.Fatalf("mockdaemon.Listen: %v", err)
	}
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Handshake(8192)
		for {
			if _, err := conn.ReadFrame(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cl, err := client.Dial(ctx, client.Endpoint{Addr: srv.Addr(), Cookie: []byte("c")})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return cl, func() { cl.Close(); srv.Close() }
}

func TestHealthReportsConnectedState(t *testing.T) {
	cl, cleanup := dialForTest(t)
	defer cleanup()

	srv := httptest.NewServer(New(cl))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got healthJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "connected", got.State)
	require.Equal(t, cl.ConnID(), got.ConnID)
	require.NotEmpty(t, got.ConnID)
}

func TestWatchesAndProgressServeEmptyLists(t *testing.T) {
	cl, cleanup := dialForTest(t)
	defer cleanup()

	srv := httptest.NewServer(New(cl))
	defer srv.Close()

	for _, path := range []string{"/watches", "/progress"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
