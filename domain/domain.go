// Package domain implements the self-maintaining, watch-backed views over
// PeerDrive's well-known system documents: the mount table (FSTab), the
// document-type handler Registry, SyncRules, and folder name lookup.
// Each watched view opens an Update session at its backing document's
// current head, reads the structured value tree, closes the session without
// committing, and re-reads whenever a watch on the underlying document
// fires.
package domain

import (
	"context"
	"sync"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/document"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/value"
)

// watchedDoc holds the shared plumbing every system-document view needs:
// reading the current head, re-reading on watch indications, and handing
// callers an up-to-date Value snapshot without blocking on daemon I/O.
type watchedDoc struct {
	c     *client.Client
	store ids.DocId
	doc   ids.DocId

	mu       sync.RWMutex
	snapshot value.Value
	err      error

	watch    *client.Watch
	onReload func()
}

func openWatchedDoc(ctx context.Context, c *client.Client, store, doc ids.DocId) (*watchedDoc, error) {
	w := &watchedDoc{c: c, store: store, doc: doc}
	if err := w.reload(ctx); err != nil {
		return nil, err
	}
	watch, err := c.Watch(ctx, client.WatchDoc, doc.Bytes())
	if err != nil {
		return nil, err
	}
	w.watch = watch
	go w.loop()
	return w, nil
}

func (w *watchedDoc) reload(ctx context.Context) error {
	stores, err := w.c.LookupDoc(ctx, w.doc)
	if err != nil {
		w.setErr(err)
		return err
	}
	if len(stores) == 0 {
		w.setErr(nil)
		return nil
	}
	sess, err := document.Update(ctx, w.c, w.store, w.doc)
	if err != nil {
		w.setErr(err)
		return err
	}
	defer sess.Close(ctx)
	v, err := sess.Get(ctx, "/")
	if err != nil {
		w.setErr(err)
		return err
	}
	w.mu.Lock()
	w.snapshot = v
	w.err = nil
	cb := w.onReload
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// save opens a writable session on the document's current head, replaces
// its root value with v, and commits — the counterpart to reload that
// FSTab.Save and SyncRules' mutators use to write local edits back.
func (w *watchedDoc) save(ctx context.Context, v value.Value) error {
	sess, err := document.Update(ctx, w.c, w.store, w.doc)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)
	if err := sess.Set(ctx, "/", v); err != nil {
		return err
	}
	if _, err := sess.Commit(ctx, ""); err != nil {
		return err
	}

	w.mu.Lock()
	w.snapshot = v
	w.err = nil
	cb := w.onReload
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (w *watchedDoc) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *watchedDoc) loop() {
	for range w.watch.Events() {
		ctx, cancel := context.WithCancel(context.Background())
		_ = w.reload(ctx)
		cancel()
	}
}

// dictEntries copies v's key/value pairs into a plain map, the only way to
// derive an edited Dict value: value.Value is immutable, so every mutator
// in this package builds a whole new Dict/List rather than patching v.
func dictEntries(v value.Value) map[string]value.Value {
	keys := v.Keys()
	out := make(map[string]value.Value, len(keys))
	for _, k := range keys {
		if val, ok := v.Get(k); ok {
			out[k] = val
		}
	}
	return out
}

func setDictEntry(v value.Value, key string, entry value.Value) value.Value {
	m := dictEntries(v)
	m[key] = entry
	return value.Dict(m)
}

func deleteDictEntry(v value.Value, key string) value.Value {
	m := dictEntries(v)
	delete(m, key)
	return value.Dict(m)
}

// Snapshot returns the last successfully parsed structured value and the
// error from the most recent reload attempt, if any.
func (w *watchedDoc) Snapshot() (value.Value, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot, w.err
}

// Close stops watching the backing document.
func (w *watchedDoc) Close() error {
	if w.watch == nil {
		return nil
	}
	return w.watch.Close()
}
