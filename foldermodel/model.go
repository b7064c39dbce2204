package foldermodel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/document"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

// UpdateKind classifies one entry of a dispatched batch.
type UpdateKind int

const (
	// Added reports a newly-fetched node (root, or a child discovered while
	// fetching its parent). Fires once per node's first successful fetch.
	Added UpdateKind = iota
	// Changed reports a node whose columns were re-evaluated after a
	// watch-driven re-fetch.
	Changed
	// Removed reports a node whose link disappeared from its parent's
	// children on re-fetch.
	Removed
	// ParentFetched fires exactly once for a node, when its unknownChildren
	// count transitions to zero after at least one of its children (or the
	// node itself, if childless) has completed a first fetch.
	ParentFetched
	// Reordered reports that Info.ID's visible child order changed: after a
	// re-fetch moved a child under the active sort column, after its children
	// were reconciled, or after SetSortColumn.
	Reordered
)

func (k UpdateKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	case ParentFetched:
		return "parent-fetched"
	case Reordered:
		return "reordered"
	default:
		return "unknown"
	}
}

// FolderInfo is the displayable snapshot of one node, batched to the UI
// observer.
type FolderInfo struct {
	ID       NodeID
	ParentID NodeID
	Link     link.Link
	TypeCode string
	IsFolder bool
	Visible  bool
	Columns  []value.Value
}

// Update is one entry of a batch delivered on Model.Updates().
type Update struct {
	Kind UpdateKind
	Info FolderInfo
}

// folderType is the UTI a document must conform to before the worker treats
// it as a folder and reads its children list.
const folderType = "org.peerdrive.folder"

// TypeConformer answers whether a document type conforms to a super class by
// walking the registry's conformance graph. *domain.Registry satisfies it;
// foldermodel deliberately names the capability rather than the concrete
// type, the same way link.HeadResolver abstracts *client.Client.
type TypeConformer interface {
	Conformes(uti, superClass string) bool
}

// Model is an observable hierarchical item tree: an
// arena of nodes reachable from a root Link, kept current by a background
// worker that re-fetches a node whenever a Watch indication fires for it.
type Model struct {
	c    *client.Client
	log  *zap.SugaredLogger
	cols *columnSource
	conf TypeConformer

	batchInterval time.Duration

	regLookup RegistryLookup
	cacheSize int

	mu      sync.Mutex
	arena   []*node
	root    NodeID
	columns []ColumnKey
	sortCol int
	closed  bool

	queue *workQueue

	batchMu      sync.Mutex
	batch        []Update
	updatesCh    chan []Update
	workerDoneCh chan struct{}
}

// Option customizes Open.
type Option func(*Model)

// WithLogger overrides the zap sugared logger used for per-item fetch
// failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *Model) { m.log = log }
}

// WithRegistryLookup wires the "typeCode:dotted/path" column resolver.
// Without it, non-builtin column keys always evaluate to value.Null().
func WithRegistryLookup(lookup RegistryLookup) Option {
	return func(m *Model) { m.regLookup = lookup }
}

// WithRegistry wires the conformance walk (domain.Registry.Conformes) used
// to decide which documents are folders. Without it the model falls back to
// an exact match on the folder UTI itself, losing types that only conform
// to it through the registry's conforming chain.
func WithRegistry(conf TypeConformer) Option {
	return func(m *Model) { m.conf = conf }
}

// WithCacheSize overrides the registry-lookup LRU cache capacity (default
// 2048, matching internal/config.Config.Cache.ColumnsSize).
func WithCacheSize(n int) Option {
	return func(m *Model) { m.cacheSize = n }
}

// WithBatchInterval overrides the 100ms default dispatch interval; under
// steady load no result is ever held for more than two intervals.
func WithBatchInterval(d time.Duration) Option {
	return func(m *Model) { m.batchInterval = d }
}

// Open builds a Model rooted at rootLink with the given initial column set
// and starts its background worker. Call Close when the model is no longer
// needed: it stops the worker and unsubscribes every outstanding watch.
func Open(c *client.Client, rootLink link.Link, columns []ColumnKey, opts ...Option) *Model {
	m := &Model{
		c:             c,
		log:           zap.NewNop().Sugar(),
		cacheSize:     2048,
		batchInterval: 100 * time.Millisecond,
		queue:         newWorkQueue(),
		updatesCh:     make(chan []Update, 16),
		workerDoneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cols = newColumnSource(m.regLookup, m.cacheSize)
	m.columns = append([]ColumnKey(nil), columns...)

	m.mu.Lock()
	root := m.newNode(rootLink, noParent)
	m.root = root
	m.subscribeLocked(root)
	m.mu.Unlock()
	m.queue.push(root)

	go m.workerLoop()
	go m.tickerLoop()
	return m
}

// Updates returns the channel batches are delivered on, in dispatch order.
// It is closed once Close has fully drained the worker.
func (m *Model) Updates() <-chan []Update { return m.updatesCh }

// Root returns the root node's id.
func (m *Model) Root() NodeID { return m.root }

// Close stops the worker and releases every watch subscription. Later calls
// are no-ops.
func (m *Model) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	arena := append([]*node(nil), m.arena...)
	m.mu.Unlock()

	m.queue.close()
	<-m.workerDoneCh

	for _, n := range arena {
		if n.watch != nil {
			_ = n.watch.Close()
		}
	}
	close(m.updatesCh)
	return nil
}

// SetColumns replaces the configured column set and re-enqueues every known
// node for re-fetch, since each node's cached column values are now stale.
func (m *Model) SetColumns(columns []ColumnKey) {
	m.mu.Lock()
	m.columns = append([]ColumnKey(nil), columns...)
	ids := make([]NodeID, 0, len(m.arena))
	for i := range m.arena {
		ids = append(ids, NodeID(i))
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.queue.push(id)
	}
}

// SetSortColumn selects which column index orders visibleChildren. Every
// node's visible child order is re-evaluated immediately; parents whose
// order actually changed are reported as Reordered in the next batch.
func (m *Model) SetSortColumn(col int) {
	m.mu.Lock()
	m.sortCol = col
	var updates []Update
	for id, n := range m.arena {
		if len(n.visibleChildren) < 2 {
			continue
		}
		if m.resortChildren(n, col) {
			updates = append(updates, Update{Kind: Reordered, Info: m.infoLocked(NodeID(id))})
		}
	}
	m.mu.Unlock()

	m.appendBatch(updates)
}

// Snapshot returns the current displayable state of id.
func (m *Model) Snapshot(id NodeID) (FolderInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) < 0 || int(id) >= len(m.arena) {
		return FolderInfo{}, false
	}
	return m.infoLocked(id), true
}

// Children returns id's currently visible children, in sort order.
func (m *Model) Children(id NodeID) []NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) < 0 || int(id) >= len(m.arena) {
		return nil
	}
	return append([]NodeID(nil), m.arena[id].visibleChildren...)
}

func (m *Model) infoLocked(id NodeID) FolderInfo {
	n := m.arena[id]
	return FolderInfo{
		ID:       id,
		ParentID: n.parent,
		Link:     n.link,
		TypeCode: n.typeCode,
		IsFolder: n.isFolder,
		Visible:  n.visible,
		Columns:  append([]value.Value(nil), n.columns...),
	}
}

func (m *Model) newNode(l link.Link, parent NodeID) NodeID {
	n := &node{link: l, parent: parent, children: make(map[string]NodeID)}
	m.arena = append(m.arena, n)
	id := NodeID(len(m.arena) - 1)
	if parent != noParent {
		m.arena[parent].unknownChildren++
	}
	return id
}

func isRootLink(l link.Link) bool {
	return l.IsDocLink() && l.Doc().IsZero()
}

// workerLoop is the model's single background task: it pops work, fetches,
// reconciles children, and appends results to the pending batch.
func (m *Model) workerLoop() {
	defer close(m.workerDoneCh)
	ctx := context.Background()
	for {
		id, ok := m.queue.pop()
		if !ok {
			m.flush()
			return
		}
		updates := m.processNode(ctx, id)
		m.appendBatch(updates)
		if m.queue.empty() {
			m.flush()
		}
	}
}

// tickerLoop enforces the "at most 100ms between dispatches under steady
// load" fairness property independent of queue-drain flushes.
func (m *Model) tickerLoop() {
	t := time.NewTicker(m.batchInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.flush()
		case <-m.workerDoneCh:
			return
		}
	}
}

func (m *Model) appendBatch(updates []Update) {
	if len(updates) == 0 {
		return
	}
	m.batchMu.Lock()
	m.batch = append(m.batch, updates...)
	m.batchMu.Unlock()
}

func (m *Model) flush() {
	m.batchMu.Lock()
	if len(m.batch) == 0 {
		m.batchMu.Unlock()
		return
	}
	batch := m.batch
	m.batch = nil
	m.batchMu.Unlock()

	// A slow consumer blocks the dispatch rather than dropping it, so the
	// observer sees every batch in order.
	m.updatesCh <- batch
}

func (m *Model) enqueue(id NodeID) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.queue.push(id)
}

// resolvedRevID returns the RevId the fetched session ended up positioned
// at, for use in a follow-up Stat call, or "" if none is known.
func resolvedRevID(l link.Link, sess *document.Session) ids.RevId {
	if l.Kind() == link.RevLinkKind {
		return l.Rev()
	}
	return sess.Rev()
}

// columnsSnapshot returns a copy of the currently configured columns, safe
// to use from the worker goroutine without holding m.mu across RPC calls.
func (m *Model) columnsSnapshot() []ColumnKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ColumnKey(nil), m.columns...)
}

// sortValue extracts the value the active sort column produced for n, or
// the zero Value if out of range.
func sortValue(n *node, sortCol int) value.Value {
	if sortCol < 0 || sortCol >= len(n.columns) {
		return value.Value{}
	}
	return n.columns[sortCol]
}

// resortChildren re-sorts parent's visibleChildren by the active sort
// column. It reports whether the order changed.
func (m *Model) resortChildren(parent *node, sortCol int) bool {
	before := append([]NodeID(nil), parent.visibleChildren...)
	sort.SliceStable(parent.visibleChildren, func(i, j int) bool {
		a := m.arena[parent.visibleChildren[i]]
		b := m.arena[parent.visibleChildren[j]]
		av, bv := sortValue(a, sortCol), sortValue(b, sortCol)
		if less, ok := compareValues(av, bv); ok {
			return less
		}
		return linkKey(a.link) < linkKey(b.link)
	})
	changed := len(before) != len(parent.visibleChildren)
	if !changed {
		for i := range before {
			if before[i] != parent.visibleChildren[i] {
				changed = true
				break
			}
		}
	}
	return changed
}

// compareValues orders two Values for sorting, where it can; ok is false
// for kinds with no natural order (dict, list, link) or mismatched kinds,
// in which case callers fall back to a stable tiebreaker.
func compareValues(a, b value.Value) (less bool, ok bool) {
	if a.Kind() != b.Kind() {
		return false, false
	}
	switch a.Kind() {
	case value.KindString:
		av, _ := a.Str()
		bv, _ := b.Str()
		return strings.Compare(av, bv) < 0, true
	case value.KindInt:
		av, _ := a.Int()
		bv, _ := b.Int()
		return av < bv, true
	case value.KindUint:
		av, _ := a.Uint()
		bv, _ := b.Uint()
		return av < bv, true
	case value.KindFloat:
		av, _ := a.Float32()
		bv, _ := b.Float32()
		return av < bv, true
	case value.KindDouble:
		av, _ := a.Float64()
		bv, _ := b.Float64()
		return av < bv, true
	default:
		return false, false
	}
}
