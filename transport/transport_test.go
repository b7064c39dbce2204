package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orbaslabs/peerdrive/internal/wire"
)

func pipePair(t *testing.T) (client *Transport, server net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	log := logrus.NewEntry(logrus.New())
	return New(a, log), b
}

func TestSendRequestRoundTrip(t *testing.T) {
	tr, srv := pipePair(t)
	defer tr.Close()

	go func() {
		f, err := wire.ReadFrame(srv)
		if err != nil {
			return
		}
		_ = wire.WriteFrame(srv, wire.Frame{Code: f.Code, Flag: wire.FlagCNF, Ref: f.Ref, Payload: []byte("pong")})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame, err := tr.SendRequest(ctx, wire.MsgStat, []byte("ping"))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if string(frame.Payload) != "pong" {
		t.Fatalf("payload = %q, want pong", frame.Payload)
	}
}

// TestOutOfOrderReplies verifies that three concurrent calls, answered in
// reverse order by the peer, each resolve to their own caller.
func TestOutOfOrderReplies(t *testing.T) {
	tr, srv := pipePair(t)
	defer tr.Close()

	refsCh := make(chan []uint32, 1)
	go func() {
		var frames []wire.Frame
		var refs []uint32
		for i := 0; i < 3; i++ {
			f, err := wire.ReadFrame(srv)
			if err != nil {
				return
			}
			frames = append(frames, f)
			refs = append(refs, f.Ref)
		}
		refsCh <- refs
		for i := len(frames) - 1; i >= 0; i-- {
			f := frames[i]
			_ = wire.WriteFrame(srv, wire.Frame{Code: f.Code, Flag: wire.FlagCNF, Ref: f.Ref, Payload: f.Payload})
		}
	}()

	ctx := context.Background()
	type res struct {
		payload string
		err     error
	}
	results := make(chan res, 3)
	for _, p := range []string{"A", "B", "C"} {
		p := p
		go func() {
			f, err := tr.SendRequest(ctx, wire.MsgStat, []byte(p))
			if err != nil {
				results <- res{err: err}
				return
			}
			results <- res{payload: string(f.Payload)}
		}()
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("SendRequest: %v", r.err)
		}
		seen[r.payload] = true
	}
	for _, want := range []string{"A", "B", "C"} {
		if !seen[want] {
			t.Errorf("missing reply for %s", want)
		}
	}

	// Refs are unique and strictly increasing in send order.
	refs := <-refsCh
	for i := 1; i < len(refs); i++ {
		if refs[i] <= refs[i-1] {
			t.Errorf("refs not monotonic in send order: %v", refs)
		}
	}
}

func TestIndicationsDelivered(t *testing.T) {
	tr, srv := pipePair(t)
	defer tr.Close()

	go func() {
		_ = wire.WriteFrame(srv, wire.Frame{Code: wire.MsgWatch, Flag: wire.FlagIND, Ref: 0, Payload: []byte("changed")})
	}()

	select {
	case f := <-tr.Indications():
		if string(f.Payload) != "changed" {
			t.Fatalf("payload = %q", f.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for indication")
	}
}

func TestConnectionResetFailsPending(t *testing.T) {
	tr, srv := pipePair(t)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := tr.SendRequest(ctx, wire.MsgStat, []byte("x"))
	if err == nil {
		t.Fatal("expected error after connection reset")
	}
}

func TestCancelDoesNotBlockLateReply(t *testing.T) {
	tr, srv := pipePair(t)
	defer tr.Close()

	reqDone := make(chan wire.Frame, 1)
	go func() {
		f, err := wire.ReadFrame(srv)
		if err != nil {
			return
		}
		reqDone <- f
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.SendRequest(ctx, wire.MsgStat, []byte("slow"))
	if err == nil {
		t.Fatal("expected context deadline error")
	}

	f := <-reqDone
	// A late reply must not panic or deadlock the transport even though the
	// caller already gave up.
	if err := wire.WriteFrame(srv, wire.Frame{Code: f.Code, Flag: wire.FlagCNF, Ref: f.Ref, Payload: nil}); err != nil {
		t.Fatalf("late WriteFrame: %v", err)
	}
}
