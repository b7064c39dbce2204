package client

import (
	"context"
	"sync"

	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
)

// ProgressEventKind distinguishes the three indications a progress
// subscriber sees for any one tagged task.
type ProgressEventKind int

const (
	ProgressStarted ProgressEventKind = iota
	ProgressChanged
	ProgressFinished
)

// ProgressEntry mirrors one ProgressEntry wire shape.
type ProgressEntry struct {
	Tag         uint64
	Replication bool // false = sync, true = replication
	SrcStore    []byte
	DstStore    []byte
	Item        []byte
	Paused      bool
	ErrorCode   int32
	ErrorItem   []byte
	Permille    uint32
}

// ProgressEvent is delivered to a subscriber for every table change.
type ProgressEvent struct {
	Kind  ProgressEventKind
	Entry ProgressEntry
}

const (
	// ProgressQuery response: repeated nested ProgressEntry.
	fieldProgQueryEntry = 1

	progStateRunning = 0
	progStatePaused  = 1
	progStateError   = 2
)

func progressEntryFromMessage(msg *rpcbody.Message) ProgressEntry {
	tag, _ := msg.Uint64(rpcbody.FieldProgTag)
	kind, _ := msg.Uint64(rpcbody.FieldProgKind)
	src, _ := msg.Bytes(rpcbody.FieldProgSrcStore)
	dst, _ := msg.Bytes(rpcbody.FieldProgDstStore)
	item, _ := msg.Bytes(rpcbody.FieldProgItem)
	state, _ := msg.Uint64(rpcbody.FieldProgState)
	errCode, _ := msg.Int64(rpcbody.FieldProgErrorCode)
	errItem, _ := msg.Bytes(rpcbody.FieldProgErrorItem)
	permille, _ := msg.Uint64(rpcbody.FieldProgPermille)
	return ProgressEntry{
		Tag:         tag,
		Replication: kind == 1,
		SrcStore:    src,
		DstStore:    dst,
		Item:        item,
		Paused:      state == progStatePaused,
		ErrorCode:   int32(errCode),
		ErrorItem:   errItem,
		Permille:    uint32(permille),
	}
}

// ProgressSub is a live subscription to the daemon's task progress stream.
type ProgressSub struct {
	t  *progressTracker
	ch chan ProgressEvent
}

func (s *ProgressSub) Events() <-chan ProgressEvent { return s.ch }
func (s *ProgressSub) Close() error { return s.t.remove(s) }

// progressTracker maintains the table of in-flight tagged tasks and fans out
// Started/Changed/Finished events. The first subscriber triggers
// WatchProgress(enable=true) plus a ProgressQuery catch-up seed; the last
// subscriber leaving tears WatchProgress back down.
type progressTracker struct {
	c *Client

	mu    sync.Mutex
	subs  []*ProgressSub
	table map[uint64]ProgressEntry
}

func newProgressTracker(c *Client) *progressTracker {
	return &progressTracker{c: c, table: make(map[uint64]ProgressEntry)}
}

// Subscribe starts or joins the progress stream. The new subscription is
// registered under the same critical section that decides whether it is the
// first, so two concurrent first subscribers can never both send
// WatchProgress(enable=true) — the same transition guarantee the watch
// registry makes for WatchAdd.
func (t *progressTracker) Subscribe(ctx context.Context) (*ProgressSub, error) {
	sub := &ProgressSub{t: t, ch: make(chan ProgressEvent, 64)}

	t.mu.Lock()
	first := len(t.subs) == 0
	t.subs = append(t.subs, sub)
	if !first {
		// A late joiner is seeded from the in-memory table, which the
		// running stream keeps current: one synthetic Started+Changed pair
		// per in-flight task, so it starts in sync without re-querying.
		t.seedLocked(sub)
		t.mu.Unlock()
		return sub, nil
	}
	t.mu.Unlock()

	b := rpcbody.NewBuilder()
	b.PutBool(1, true)
	if _, err := t.c.call(ctx, "WatchProgress", wire.MsgWatchProgress, b.Bytes()); err != nil {
		t.unregisterFailed(sub)
		return nil, err
	}

	reply, err := t.c.call(ctx, "ProgressQuery", wire.MsgProgressQuery, nil)
	if err != nil {
		t.unregisterFailed(sub)
		b := rpcbody.NewBuilder()
		b.PutBool(1, false)
		_, _ = t.c.call(context.Background(), "WatchProgress", wire.MsgWatchProgress, b.Bytes())
		return nil, err
	}

	t.mu.Lock()
	for _, raw := range reply.RepeatedBytes(fieldProgQueryEntry) {
		msg, err := rpcbody.Parse(raw)
		if err != nil {
			continue
		}
		entry := progressEntryFromMessage(msg)
		t.table[entry.Tag] = entry
	}
	t.seedLocked(sub)
	t.mu.Unlock()

	return sub, nil
}

// seedLocked delivers the current table to a freshly attached subscriber as
// synthetic Started+Changed pairs. Catch-up events go only to the new
// subscriber, never broadcast. Caller holds t.mu.
func (t *progressTracker) seedLocked(sub *ProgressSub) {
	for _, entry := range t.table {
		for _, kind := range []ProgressEventKind{ProgressStarted, ProgressChanged} {
			select {
			case sub.ch <- ProgressEvent{Kind: kind, Entry: entry}:
			default:
				t.c.log.Warn("client: progress catch-up overflow, dropping event")
			}
		}
	}
}

// unregisterFailed removes sub after a setup RPC failed, so a later
// Subscribe still observes first == true and retries.
func (t *progressTracker) unregisterFailed(sub *ProgressSub) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s == sub {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

func (t *progressTracker) remove(s *ProgressSub) error {
	t.mu.Lock()
	idx := -1
	for i, sub := range t.subs {
		if sub == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return nil
	}
	t.subs = append(t.subs[:idx], t.subs[idx+1:]...)
	last := len(t.subs) == 0
	if last {
		t.table = make(map[uint64]ProgressEntry)
	}
	t.mu.Unlock()

	close(s.ch)

	if !last {
		return nil
	}
	b := rpcbody.NewBuilder()
	b.PutBool(1, false)
	_, err := t.c.call(context.Background(), "WatchProgress", wire.MsgWatchProgress, b.Bytes())
	return err
}

// snapshot returns the current table of in-flight tasks, in no particular
// order.
func (t *progressTracker) snapshot() []ProgressEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ProgressEntry, 0, len(t.table))
	for _, e := range t.table {
		out = append(out, e)
	}
	return out
}

func (t *progressTracker) dispatch(f wire.Frame) {
	msg, err := rpcbody.Parse(f.Payload)
	if err != nil {
		t.c.log.WithError(err).Warn("client: malformed progress indication")
		return
	}
	entry := progressEntryFromMessage(msg)

	var kind ProgressEventKind
	switch f.Code {
	case wire.MsgProgressStart:
		kind = ProgressStarted
	case wire.MsgProgress:
		kind = ProgressChanged
	case wire.MsgProgressEnd:
		kind = ProgressFinished
	}

	t.mu.Lock()
	if kind == ProgressFinished {
		delete(t.table, entry.Tag)
	} else {
		t.table[entry.Tag] = entry
	}
	subs := append([]*ProgressSub(nil), t.subs...)
	t.mu.Unlock()

	ev := ProgressEvent{Kind: kind, Entry: entry}
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			t.c.log.Warn("client: progress subscriber slow, dropping event")
		}
	}
}
