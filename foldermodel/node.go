// Package foldermodel implements the background folder prefetch engine: a
// worker that walks folder-shaped documents reachable from a root Link,
// extracts a caller-configured set of displayable columns per node, and
// streams batched updates to a UI-side observer. Fetches run on the model's
// own worker goroutine; Open (the root's watch subscription) and Close
// (unsubscribing every outstanding watch) wait on daemon round-trips on the
// caller's goroutine.
package foldermodel

import (
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

// NodeID indexes a Node within a Model's arena. It stays valid for the
// lifetime of the node (arena slots are never reused while a node is live),
// giving parent/child back-references a stable, copyable, hashable handle
// instead of a Go pointer — the index-based arena the design notes
// call for to defuse the cyclic parent/multi-index ownership a naive
// pointer graph would create.
type NodeID int

// noParent marks the root node's parent slot.
const noParent NodeID = -1

// node is one entry of the prefetched tree. Its fields are mutated under
// Model.mu by the worker goroutine, and by SetSortColumn, which re-sorts
// visibleChildren; readers go through Model's exported snapshot methods,
// which copy out from behind Model.mu.
type node struct {
	link   link.Link
	parent NodeID

	typeCode string
	isFolder bool

	fetched bool // at least one fetch has completed
	visible bool // columns populated; false while still a placeholder

	columns []value.Value

	children        map[string]NodeID // child's link key -> NodeID
	visibleChildren []NodeID          // ordered by the active sort column
	unknownChildren int               // children whose own first fetch hasn't completed

	watch watchHandle
}

// watchHandle abstracts client.Watch so tests can substitute a fake without
// dialing a daemon.
type watchHandle interface {
	Close() error
}

// linkKey renders a Link into a stable map/dedup key. Two Links comparing
// Equal always produce the same key; store participates so the same
// document on two different stores is tracked as two distinct nodes.
func linkKey(l link.Link) string {
	u, err := l.URI()
	if err == nil {
		return l.Kind().String() + ":" + l.Store().Hex() + ":" + u
	}
	return "invalid"
}
