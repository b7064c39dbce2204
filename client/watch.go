package client

import (
	"context"
	"sync"

	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
)

// WatchKind identifies what a watch target names: a document or a revision.
type WatchKind int

const (
	WatchDoc WatchKind = iota
	WatchRev
)

// WatchEventType enumerates the kinds of change a watch can report.
type WatchEventType int

const (
	EventModified WatchEventType = iota
	EventAppeared
	EventReplicated
	EventDiminished
	EventDisappeared
)

func (t WatchEventType) String() string {
	switch t {
	case EventModified:
		return "modified"
	case EventAppeared:
		return "appeared"
	case EventReplicated:
		return "replicated"
	case EventDiminished:
		return "diminished"
	case EventDisappeared:
		return "disappeared"
	default:
		return "unknown"
	}
}

// WatchEvent is one Watch indication, demultiplexed to a subscriber.
type WatchEvent struct {
	Kind    WatchKind
	Element []byte
	Type    WatchEventType
	Store   []byte
}

// Watch is a live subscription to changes on one doc or rev id. Call Close
// when done; the registry sends WatchRem once the last subscriber for a
// target goes away.
type Watch struct {
	reg *watchRegistry
	key watchKey
	ch  chan WatchEvent
}

// Events returns the channel this watch delivers events on. It is closed
// when the watch is removed.
func (w *Watch) Events() <-chan WatchEvent { return w.ch }

// Close unsubscribes. Safe to call once.
func (w *Watch) Close() error { return w.reg.remove(w) }

type watchKey struct {
	kind    WatchKind
	element string // raw id bytes, used as a comparable map key
}

// watchRegistry reference-counts subscriptions per target so WatchAdd/
// WatchRem are only ever sent on the first-subscribe/last-unsubscribe
// transition.
type watchRegistry struct {
	c *Client

	mu   sync.Mutex
	subs map[watchKey][]*Watch
}

func newWatchRegistry(c *Client) *watchRegistry {
	return &watchRegistry{c: c, subs: make(map[watchKey][]*Watch)}
}

// Add subscribes to a doc or rev target. The new Watch is registered under
// the same critical section that decides whether it is the first subscriber
// for key, so two concurrent Add calls on the same target can never both
// see first == true and both send WatchAdd.
func (r *watchRegistry) Add(ctx context.Context, kind WatchKind, element []byte) (*Watch, error) {
	key := watchKey{kind: kind, element: string(element)}
	w := &Watch{reg: r, key: key, ch: make(chan WatchEvent, 32)}

	r.mu.Lock()
	first := len(r.subs[key]) == 0
	r.subs[key] = append(r.subs[key], w)
	r.mu.Unlock()

	if !first {
		return w, nil
	}

	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldWatchKind, uint64(kind))
	b.PutBytes(rpcbody.FieldWatchElement, element)
	if _, err := r.c.call(ctx, "WatchAdd", wire.MsgWatchAdd, b.Bytes()); err != nil {
		r.unregisterFailed(w)
		return nil, err
	}
	return w, nil
}

// unregisterFailed removes w after its WatchAdd RPC failed, so a later Add
// on the same target still observes first == true and retries the RPC.
func (r *watchRegistry) unregisterFailed(w *Watch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[w.key]
	for i, s := range list {
		if s == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.subs, w.key)
	} else {
		r.subs[w.key] = list
	}
}

func (r *watchRegistry) remove(w *Watch) error {
	r.mu.Lock()
	list := r.subs[w.key]
	idx := -1
	for i, s := range list {
		if s == w {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return nil // already removed
	}
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		delete(r.subs, w.key)
	} else {
		r.subs[w.key] = list
	}
	last := len(list) == 0
	r.mu.Unlock()

	close(w.ch)

	if !last {
		return nil
	}
	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldWatchKind, uint64(w.key.kind))
	b.PutBytes(rpcbody.FieldWatchElement, []byte(w.key.element))
	_, err := r.c.call(context.Background(), "WatchRem", wire.MsgWatchRem, b.Bytes())
	return err
}

// WatchRefCount is one entry of a watch registry snapshot: a target and how
// many live subscribers reference it.
type WatchRefCount struct {
	Kind     WatchKind
	Element  []byte
	RefCount int
}

func (r *watchRegistry) snapshot() []WatchRefCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WatchRefCount, 0, len(r.subs))
	for k, subs := range r.subs {
		out = append(out, WatchRefCount{Kind: k.kind, Element: []byte(k.element), RefCount: len(subs)})
	}
	return out
}

func (r *watchRegistry) dispatch(f wire.Frame) {
	msg, err := rpcbody.Parse(f.Payload)
	if err != nil {
		r.c.log.WithError(err).Warn("client: malformed Watch indication")
		return
	}
	kindRaw, _ := msg.Uint64(rpcbody.FieldWatchKind)
	element, _ := msg.Bytes(rpcbody.FieldWatchElement)
	eventRaw, _ := msg.Uint64(rpcbody.FieldWatchEvent)
	store, _ := msg.Bytes(rpcbody.FieldWatchStore)

	key := watchKey{kind: WatchKind(kindRaw), element: string(element)}
	ev := WatchEvent{Kind: key.kind, Element: element, Type: WatchEventType(eventRaw), Store: store}

	r.mu.Lock()
	subs := append([]*Watch(nil), r.subs[key]...)
	r.mu.Unlock()

	for _, w := range subs {
		select {
		case w.ch <- ev:
		default:
			r.c.log.Warnf("client: watch subscriber slow, dropping event for %x", element)
		}
	}
}
