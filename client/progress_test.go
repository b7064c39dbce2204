package client

import (
	"context"
	"testing"
	"time"

	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
)

func TestProgressCatchUpOnFirstSubscriber(t *testing.T) {
	cl, conn, cleanup := dialMock(t, 4096)
	defer cleanup()

	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			switch f.Code {
			case wire.MsgWatchProgress:
				_ = conn.Reply(f, nil)
			case wire.MsgProgressQuery:
				entry := rpcbody.NewBuilder()
				entry.PutUint64(rpcbody.FieldProgTag, 7)
				entry.PutUint64(rpcbody.FieldProgKind, 0)
				entry.PutUint64(rpcbody.FieldProgPermille, 500)
				reply := rpcbody.NewBuilder()
				reply.PutBytes(fieldProgQueryEntry, entry.Bytes())
				_ = conn.Reply(f, reply.Bytes())
			default:
				_ = conn.Reply(f, nil)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := cl.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	defer sub.Close()

	var gotStarted, gotChanged bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Entry.Tag != 7 {
				t.Fatalf("unexpected tag %d", ev.Entry.Tag)
			}
			switch ev.Kind {
			case ProgressStarted:
				gotStarted = true
			case ProgressChanged:
				gotChanged = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for catch-up events")
		}
	}
	if !gotStarted || !gotChanged {
		t.Fatalf("expected synthetic started+changed events, got started=%v changed=%v", gotStarted, gotChanged)
	}
}

// TestProgressLateJoinerSeededFromTable verifies that a subscriber attaching
// while tasks are already in flight receives a synthetic started+changed pair
// per task from the in-memory table, without a second daemon query.
func TestProgressLateJoinerSeededFromTable(t *testing.T) {
	cl, conn, cleanup := dialMock(t, 4096)
	defer cleanup()

	queries := make(chan struct{}, 4)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			if f.Code == wire.MsgProgressQuery {
				queries <- struct{}{}
			}
			_ = conn.Reply(f, nil)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := cl.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress (first): %v", err)
	}
	defer first.Close()
	<-queries

	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldProgTag, 11)
	b.PutUint64(rpcbody.FieldProgPermille, 250)
	if err := conn.Indicate(wire.MsgProgressStart, b.Bytes()); err != nil {
		t.Fatalf("Indicate: %v", err)
	}
	select {
	case <-first.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the live start event")
	}

	second, err := cl.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress (second): %v", err)
	}
	defer second.Close()

	wantKinds := []ProgressEventKind{ProgressStarted, ProgressChanged}
	for _, want := range wantKinds {
		select {
		case ev := <-second.Events():
			if ev.Kind != want || ev.Entry.Tag != 11 {
				t.Fatalf("late joiner: got %+v, want kind %v for tag 11", ev, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for late joiner's %v event", want)
		}
	}

	select {
	case <-queries:
		t.Fatal("late joiner must not trigger a second ProgressQuery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProgressFanOutAndTeardown(t *testing.T) {
	cl, conn, cleanup := dialMock(t, 4096)
	defer cleanup()

	progressStartSent := make(chan struct{})
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			switch f.Code {
			case wire.MsgWatchProgress:
				_ = conn.Reply(f, nil)
			case wire.MsgProgressQuery:
				_ = conn.Reply(f, nil)
				close(progressStartSent)
			default:
				_ = conn.Reply(f, nil)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := cl.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}

	<-progressStartSent
	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldProgTag, 9)
	b.PutUint64(rpcbody.FieldProgPermille, 100)
	if err := conn.Indicate(wire.MsgProgressStart, b.Bytes()); err != nil {
		t.Fatalf("Indicate: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != ProgressStarted || ev.Entry.Tag != 9 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ProgressStart indication")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
