// Package info defines the read-only data types returned by the client's
// info queries. It has no
// dependency on the client or transport packages so those can depend on it
// without creating an import cycle.
package info

import (
	"time"

	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/link"
)

// Mount describes one store enumerated from the daemon.
type Mount struct {
	SID      ids.DocId
	Src      string
	Type     string
	Label    string
	Options  []string
	IsSystem bool
}

// AttachmentInfo is one entry of a RevInfo's attachment-name -> (hash, size)
// mapping.
type AttachmentInfo struct {
	Name string
	Hash []byte
	Size uint64
}

// RevInfo is the immutable metadata of a revision.
type RevInfo struct {
	Flags       uint64
	Mtime       time.Time
	Type        string
	Creator     string
	Comment     string
	Parents     []ids.RevId
	DataHash    []byte
	DataSize    uint64
	Attachments []AttachmentInfo
}

// Attachment looks up an attachment by name.
func (r RevInfo) Attachment(name string) (AttachmentInfo, bool) {
	for _, a := range r.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return AttachmentInfo{}, false
}

// StoreEntry is one entry of DocInfo's store -> {head, pre-revs} map.
type StoreEntry struct {
	Store       ids.DocId
	HeadLink    link.Link // zero value (Invalid) if the doc has no head on this store
	PreRevLinks []link.Link
}

// RevEntry is one entry of DocInfo's inverse rev -> stores map.
type RevEntry struct {
	Rev          ids.RevId
	HeadStores   []ids.DocId
	PreRevStores []ids.DocId
}

// DocInfo is the two-mapping view of a document across stores.
type DocInfo struct {
	Stores []StoreEntry
	Revs   []RevEntry
}

// Store looks up the per-store entry by store id.
func (d DocInfo) Store(store ids.DocId) (StoreEntry, bool) {
	for _, s := range d.Stores {
		if s.Store == store {
			return s, true
		}
	}
	return StoreEntry{}, false
}
