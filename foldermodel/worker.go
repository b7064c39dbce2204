package foldermodel

import (
	"context"
	"sync"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/document"
	"github.com/orbaslabs/peerdrive/info"
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

// workQueue is the LIFO work stack of the prefetcher, protected by a mutex+condvar
// pair per the design notes.
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	stack  []NodeID
	closed bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *workQueue) push(id NodeID) {
	q.mu.Lock()
	q.stack = append(q.stack, id)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until work is available or the queue is closed and drained.
func (q *workQueue) pop() (NodeID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.stack) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.stack) == 0 {
		return 0, false
	}
	n := len(q.stack)
	id := q.stack[n-1]
	q.stack = q.stack[:n-1]
	return id, true
}

func (q *workQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.stack) == 0
}

func (q *workQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// processNode fetches id's current state from the daemon, reconciles its
// children against what was previously known, and returns the batch of
// updates the fetch produced. A failure marks the node un-fetchable and is
// logged, never propagated.
func (m *Model) processNode(ctx context.Context, id NodeID) []Update {
	m.mu.Lock()
	n := m.arena[id]
	l := n.link
	wasFetched := n.fetched
	m.mu.Unlock()

	var (
		typeCode string
		isFolder bool
		columns  []value.Value
		children []link.Link
		err      error
	)
	if isRootLink(l) {
		typeCode, isFolder, columns, children, err = m.fetchRoot(ctx)
	} else {
		typeCode, isFolder, columns, children, err = m.fetchDocument(ctx, l)
	}
	if err != nil {
		m.log.Warnw("foldermodel: fetch failed, node left un-fetchable", "link", l.String(), "error", err)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n.typeCode = typeCode
	n.isFolder = isFolder
	n.columns = columns
	firstFetch := !n.fetched
	n.fetched = true
	n.visible = true

	updates := []Update{{Kind: updateKindFor(wasFetched), Info: m.infoLocked(id)}}
	updates = append(updates, m.reconcileChildrenLocked(id, children)...)

	if firstFetch && n.unknownChildren == 0 {
		// This node has no children awaiting their own first fetch: its
		// listing is already complete.
		updates = append(updates, Update{Kind: ParentFetched, Info: m.infoLocked(id)})
	}
	if firstFetch && n.parent != noParent {
		updates = append(updates, m.decrementUnknownLocked(n.parent)...)
	}
	if n.parent != noParent {
		// The re-evaluated columns may have moved this node under the active
		// sort order; the visible order is invalidated, not left stale.
		if m.resortChildren(m.arena[n.parent], m.sortCol) {
			updates = append(updates, Update{Kind: Reordered, Info: m.infoLocked(n.parent)})
		}
	}

	return updates
}

func updateKindFor(wasFetched bool) UpdateKind {
	if wasFetched {
		return Changed
	}
	return Added
}

// decrementUnknownLocked accounts for one child of parent completing its
// first fetch, firing ParentFetched when unknownChildren transitions to
// zero — exactly once per parent, since a fetched child never counts as
// unknown again. Must be called with m.mu held.
func (m *Model) decrementUnknownLocked(parent NodeID) []Update {
	p := m.arena[parent]
	if p.unknownChildren > 0 {
		p.unknownChildren--
	}
	if p.unknownChildren == 0 && p.fetched {
		return []Update{{Kind: ParentFetched, Info: m.infoLocked(parent)}}
	}
	return nil
}

// reconcileChildrenLocked diffs freshly-fetched children against the
// previously known set: new links get arena slots, watches, and are pushed
// onto the work queue; vanished links are torn down. Must be called with
// m.mu held.
func (m *Model) reconcileChildrenLocked(parent NodeID, children []link.Link) []Update {
	p := m.arena[parent]
	seen := make(map[string]bool, len(children))
	var updates []Update

	for _, cl := range children {
		key := linkKey(cl)
		seen[key] = true
		if _, ok := p.children[key]; ok {
			continue // already known; its own watch will drive re-fetch
		}
		childID := m.newNode(cl, parent)
		p.children[key] = childID
		p.visibleChildren = append(p.visibleChildren, childID)
		m.subscribeLocked(childID)
		m.queue.push(childID)
	}

	for key, childID := range p.children {
		if seen[key] {
			continue
		}
		delete(p.children, key)
		p.visibleChildren = removeID(p.visibleChildren, childID)
		child := m.arena[childID]
		if child.watch != nil {
			_ = child.watch.Close()
			child.watch = nil
		}
		updates = append(updates, Update{Kind: Removed, Info: m.infoLocked(childID)})
	}

	if m.resortChildren(p, m.sortCol) {
		updates = append(updates, Update{Kind: Reordered, Info: m.infoLocked(parent)})
	}
	return updates
}

func removeID(ids []NodeID, target NodeID) []NodeID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// subscribeLocked registers a Watch for childID's link and spawns the
// goroutine that re-enqueues the node whenever the watch fires. Must be
// called with m.mu held; m.mu stays held across the WatchAdd round-trip
// that a new watch target sends.
func (m *Model) subscribeLocked(childID NodeID) {
	n := m.arena[childID]
	kind, element := watchTarget(n.link)
	w, err := m.c.Watch(context.Background(), kind, element)
	if err != nil {
		m.log.Warnw("foldermodel: watch subscribe failed", "link", n.link.String(), "error", err)
		return
	}
	n.watch = w
	go m.watchLoop(childID, w)
}

func watchTarget(l link.Link) (client.WatchKind, []byte) {
	if l.IsDocLink() {
		return client.WatchDoc, l.Doc().Bytes()
	}
	return client.WatchRev, l.Rev().Bytes()
}

func (m *Model) watchLoop(id NodeID, w *client.Watch) {
	for range w.Events() {
		m.enqueue(id)
	}
}

// fetchRoot synthesizes the aggregate root FolderInfo whose children are
// the daemon's currently mounted stores. Store-root documents are
// addressed by the store's own sid doubling as its root folder doc id — a
// stand-in for the daemon-internal store-root mapping, which is out of
// protocol does not expose.
func (m *Model) fetchRoot(ctx context.Context) (typeCode string, isFolder bool, columns []value.Value, children []link.Link, err error) {
	mounts, err := m.c.Mounts(ctx)
	if err != nil {
		return "", false, nil, nil, err
	}
	for _, mnt := range mounts {
		children = append(children, link.NewDocHead(mnt.SID, mnt.SID, ""))
	}
	return "org.peerdrive.root", true, make([]value.Value, len(m.columnsSnapshot())), children, nil
}

// isFolderType reports whether typeCode conforms to the folder UTI: the
// registry's recursive conformance walk when one is wired, otherwise an
// exact match on the folder UTI itself.
func (m *Model) isFolderType(typeCode string) bool {
	if m.conf != nil {
		return m.conf.Conformes(typeCode, folderType)
	}
	return typeCode == folderType
}

// fetchDocument opens l with the mode matching its Kind, reads its type,
// evaluates the configured columns, and — for folder-conforming documents
// only — reads the structured "children" list.
func (m *Model) fetchDocument(ctx context.Context, l link.Link) (typeCode string, isFolder bool, columns []value.Value, children []link.Link, err error) {
	sess, err := openSession(ctx, m.c, l)
	if err != nil {
		return "", false, nil, nil, err
	}
	defer sess.Close(ctx)

	typeCode, err = sess.Type(ctx)
	if err != nil {
		return "", false, nil, nil, err
	}
	isFolder = m.isFolderType(typeCode)

	var rev info.RevInfo
	haveRev := false
	if revID := resolvedRevID(l, sess); revID != "" {
		rev, err = m.c.Stat(ctx, revID)
		haveRev = err == nil
	}
	columns = m.cols.evaluate(ctx, m.columnsSnapshot(), rev, haveRev)

	// Only a folder-conforming document holds a structured children list;
	// anything else is a leaf and never gets the read attempted.
	if isFolder {
		if v, gerr := sess.Get(ctx, "children"); gerr == nil {
			if items, ok := v.List(); ok {
				for _, item := range items {
					if cl, cerr := link.FromValue(item); cerr == nil {
						children = append(children, cl)
					}
				}
			}
		}
	}
	return typeCode, isFolder, columns, children, nil
}

func openSession(ctx context.Context, c *client.Client, l link.Link) (*document.Session, error) {
	return document.Open(ctx, c, l)
}
