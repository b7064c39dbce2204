package client

import (
	"context"
	"fmt"
	"time"

	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/info"
	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

func nanosToTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// decodeLinkMsg parses the generic (kind, store, doc, rev) wire tuple of
// internal/rpcbody.fields.go, reused wherever a full link crosses the wire:
// DocInfo entries and GetLinks results.
func decodeLinkMsg(raw []byte) (*rpcbody.Message, error) { return rpcbody.Parse(raw) }

// Mounts lists the stores currently mounted by the daemon (Enum RPC).
func (c *Client) Mounts(ctx context.Context) ([]info.Mount, error) {
	msg, err := c.call(ctx, "Enum", wire.MsgEnum, nil)
	if err != nil {
		return nil, err
	}
	var mounts []info.Mount
	for _, raw := range msg.RepeatedBytes(1) {
		m, err := rpcbody.Parse(raw)
		if err != nil {
			return nil, newErr("Enum", CodeBadRPC, err)
		}
		sid, _ := m.Bytes(rpcbody.FieldMountSID)
		src, _ := m.String(rpcbody.FieldMountSrc)
		typ, _ := m.String(rpcbody.FieldMountType)
		label, _ := m.String(rpcbody.FieldMountLabel)
		isSystem, _ := m.Bool(rpcbody.FieldMountIsSystem)
		var opts []string
		for _, o := range m.RepeatedBytes(rpcbody.FieldMountOptions) {
			opts = append(opts, string(o))
		}
		mounts = append(mounts, info.Mount{
			SID: ids.NewDocId(sid), Src: src, Type: typ, Label: label,
			Options: opts, IsSystem: isSystem,
		})
	}
	return mounts, nil
}

// Mount adds a store to the daemon's mount table.
func (c *Client) Mount(ctx context.Context, src, storeType, label string, options []string) (info.Mount, error) {
	b := rpcbody.NewBuilder()
	b.PutString(1, src)
	b.PutString(2, storeType)
	b.PutString(3, label)
	for _, o := range options {
		b.PutString(4, o)
	}
	msg, err := c.call(ctx, "Mount", wire.MsgMount, b.Bytes())
	if err != nil {
		return info.Mount{}, err
	}
	sid, _ := msg.Bytes(1)
	return info.Mount{SID: ids.NewDocId(sid), Src: src, Type: storeType, Label: label, Options: options}, nil
}

// Unmount removes a store from the daemon's mount table.
func (c *Client) Unmount(ctx context.Context, sid ids.DocId) error {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, sid.Bytes())
	_, err := c.call(ctx, "Unmount", wire.MsgUnmount, b.Bytes())
	return err
}

// LookupDoc reports the stores that currently hold doc.
func (c *Client) LookupDoc(ctx context.Context, doc ids.DocId) ([]ids.DocId, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, doc.Bytes())
	msg, err := c.call(ctx, "LookupDoc", wire.MsgLookupDoc, b.Bytes())
	if err != nil {
		return nil, err
	}
	var stores []ids.DocId
	for _, raw := range msg.RepeatedBytes(1) {
		stores = append(stores, ids.NewDocId(raw))
	}
	return stores, nil
}

// DocInfo fetches the two-mapping view of a document across stores: for
// each store, its head link and any named preliminary revisions; and the
// inverse mapping from revision to the stores holding it as a head or
// pre-rev. The message catalog has no dedicated wire code for this query,
// so it reuses
// LookupDoc's request and decodes the richer StoreEntry/RevEntry fields the
// same response body carries alongside LookupDoc's flat store list.
func (c *Client) DocInfo(ctx context.Context, doc ids.DocId) (info.DocInfo, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, doc.Bytes())
	msg, err := c.call(ctx, "DocInfo", wire.MsgLookupDoc, b.Bytes())
	if err != nil {
		return info.DocInfo{}, err
	}

	var stores []info.StoreEntry
	for _, raw := range msg.RepeatedBytes(rpcbody.FieldDocInfoStoreEntry) {
		sm, err := rpcbody.Parse(raw)
		if err != nil {
			return info.DocInfo{}, newErr("DocInfo", CodeBadRPC, err)
		}
		storeRaw, _ := sm.Bytes(rpcbody.FieldStoreEntryStore)
		entry := info.StoreEntry{Store: ids.NewDocId(storeRaw)}

		if headRaw, ok := sm.Bytes(rpcbody.FieldStoreEntryHeadLink); ok {
			l, err := linkFromRaw(headRaw, entry.Store)
			if err != nil {
				return info.DocInfo{}, newErr("DocInfo", CodeBadRPC, err)
			}
			entry.HeadLink = l
		}
		for _, preRaw := range sm.RepeatedBytes(rpcbody.FieldStoreEntryPreRevLink) {
			l, err := linkFromRaw(preRaw, entry.Store)
			if err != nil {
				return info.DocInfo{}, newErr("DocInfo", CodeBadRPC, err)
			}
			entry.PreRevLinks = append(entry.PreRevLinks, l)
		}
		stores = append(stores, entry)
	}

	var revs []info.RevEntry
	for _, raw := range msg.RepeatedBytes(rpcbody.FieldDocInfoRevEntry) {
		rm, err := rpcbody.Parse(raw)
		if err != nil {
			return info.DocInfo{}, newErr("DocInfo", CodeBadRPC, err)
		}
		revRaw, _ := rm.Bytes(rpcbody.FieldRevEntryRev)
		entry := info.RevEntry{Rev: ids.NewRevId(revRaw)}
		for _, s := range rm.RepeatedBytes(rpcbody.FieldRevEntryHeadStores) {
			entry.HeadStores = append(entry.HeadStores, ids.NewDocId(s))
		}
		for _, s := range rm.RepeatedBytes(rpcbody.FieldRevEntryPreRevStores) {
			entry.PreRevStores = append(entry.PreRevStores, ids.NewDocId(s))
		}
		revs = append(revs, entry)
	}

	return info.DocInfo{Stores: stores, Revs: revs}, nil
}

// linkFromRaw decodes a nested (kind, store, doc, rev) link tuple into a
// link.Link, defaulting its store to fallbackStore when the tuple omits one.
func linkFromRaw(raw []byte, fallbackStore ids.DocId) (link.Link, error) {
	lm, err := decodeLinkMsg(raw)
	if err != nil {
		return link.Link{}, err
	}
	kindRaw, _ := lm.Uint64(rpcbody.FieldLinkKind)
	storeRaw, hasStore := lm.Bytes(rpcbody.FieldLinkStore)
	docRaw, _ := lm.Bytes(rpcbody.FieldLinkDoc)
	revRaw, _ := lm.Bytes(rpcbody.FieldLinkRev)

	store := fallbackStore
	if hasStore {
		store = ids.NewDocId(storeRaw)
	}

	switch int(kindRaw) {
	case 0:
		return link.NewRevLink(store, ids.NewRevId(revRaw)), nil
	case 2:
		return link.NewDocPreRev(store, ids.NewDocId(docRaw), ids.NewRevId(revRaw)), nil
	default:
		return link.NewDocHead(store, ids.NewDocId(docRaw), ids.NewRevId(revRaw)), nil
	}
}

// Stat retrieves the immutable metadata of a revision.
func (c *Client) Stat(ctx context.Context, rev ids.RevId) (info.RevInfo, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, rev.Bytes())
	msg, err := c.call(ctx, "Stat", wire.MsgStat, b.Bytes())
	if err != nil {
		return info.RevInfo{}, err
	}
	return revInfoFromMessage(msg)
}

func revInfoFromMessage(msg *rpcbody.Message) (info.RevInfo, error) {
	flags, _ := msg.Uint64(rpcbody.FieldRevFlags)
	mtimeNanos, _ := msg.Int64(rpcbody.FieldRevMtime)
	typ, _ := msg.String(rpcbody.FieldRevType)
	creator, _ := msg.String(rpcbody.FieldRevCreator)
	comment, _ := msg.String(rpcbody.FieldRevComment)
	dataHash, _ := msg.Bytes(rpcbody.FieldRevDataHash)
	dataSize, _ := msg.Uint64(rpcbody.FieldRevDataSize)

	var parents []ids.RevId
	for _, p := range msg.RepeatedBytes(rpcbody.FieldRevParents) {
		parents = append(parents, ids.NewRevId(p))
	}

	var attachments []info.AttachmentInfo
	for _, raw := range msg.RepeatedBytes(rpcbody.FieldRevAttachments) {
		am, err := rpcbody.Parse(raw)
		if err != nil {
			return info.RevInfo{}, newErr("Stat", CodeBadRPC, err)
		}
		name, _ := am.String(rpcbody.FieldAttachName)
		hash, _ := am.Bytes(rpcbody.FieldAttachHash)
		size, _ := am.Uint64(rpcbody.FieldAttachSize)
		attachments = append(attachments, info.AttachmentInfo{Name: name, Hash: hash, Size: size})
	}

	return info.RevInfo{
		Flags: flags, Type: typ, Creator: creator, Comment: comment,
		Parents: parents, DataHash: dataHash, DataSize: dataSize,
		Attachments: attachments, Mtime: nanosToTime(mtimeNanos),
	}, nil
}

// GetPath resolves a document to a host-filesystem-style path within a
// store, when the store supports one.
func (c *Client) GetPath(ctx context.Context, store, doc ids.DocId) (string, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, store.Bytes())
	b.PutBytes(2, doc.Bytes())
	msg, err := c.call(ctx, "GetPath", wire.MsgGetPath, b.Bytes())
	if err != nil {
		return "", err
	}
	path, _ := msg.String(1)
	return path, nil
}

// WalkPath resolves a path within a store to a document id.
func (c *Client) WalkPath(ctx context.Context, store ids.DocId, path string) (ids.DocId, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, store.Bytes())
	b.PutString(2, path)
	msg, err := c.call(ctx, "WalkPath", wire.MsgWalkPath, b.Bytes())
	if err != nil {
		return "", err
	}
	doc, _ := msg.Bytes(1)
	return ids.NewDocId(doc), nil
}

// ReplicateDoc asks the daemon to copy doc from srcStore into dstStore.
func (c *Client) ReplicateDoc(ctx context.Context, doc, srcStore, dstStore ids.DocId, depth int32) error {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, doc.Bytes())
	b.PutBytes(2, srcStore.Bytes())
	b.PutBytes(3, dstStore.Bytes())
	b.PutInt64(4, int64(depth))
	_, err := c.call(ctx, "ReplicateDoc", wire.MsgReplicateDoc, b.Bytes())
	return err
}

// GetLinks returns the set of links a revision's structured data contains.
func (c *Client) GetLinks(ctx context.Context, rev ids.RevId) ([]rawLinkTuple, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, rev.Bytes())
	msg, err := c.call(ctx, "GetLinks", wire.MsgGetLinks, b.Bytes())
	if err != nil {
		return nil, err
	}
	var out []rawLinkTuple
	for _, raw := range msg.RepeatedBytes(1) {
		lm, err := decodeLinkMsg(raw)
		if err != nil {
			return nil, newErr("GetLinks", CodeBadRPC, err)
		}
		kindRaw, _ := lm.Uint64(rpcbody.FieldLinkKind)
		store, _ := lm.Bytes(rpcbody.FieldLinkStore)
		doc, _ := lm.Bytes(rpcbody.FieldLinkDoc)
		rev, _ := lm.Bytes(rpcbody.FieldLinkRev)
		out = append(out, rawLinkTuple{Kind: int(kindRaw), Store: store, Doc: doc, Rev: rev})
	}
	return out, nil
}

// rawLinkTuple is the wire-level (kind, store, doc, rev) shape returned by
// GetLinks; unlike DocInfo, which converts its tuples through linkFromRaw,
// GetLinks leaves the conversion to link.Link to its callers.
type rawLinkTuple struct {
	Kind  int
	Store []byte
	Doc   []byte
	Rev   []byte
}

// --- document session RPCs -------------------------------------------------

// Peek opens a read-only session handle on an immutable revision.
func (c *Client) Peek(ctx context.Context, rev ids.RevId) (uint64, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, rev.Bytes())
	msg, err := c.call(ctx, "Peek", wire.MsgPeek, b.Bytes())
	if err != nil {
		return 0, err
	}
	handle, _ := msg.Uint64(1)
	return handle, nil
}

// Update opens a writable session handle positioned at a store's current
// head for doc. The returned RevId is the head revision the handle was
// opened against, as echoed back by the daemon; it is empty if the daemon
// does not report it, in which case callers only learn the new rev at
// Commit time.
func (c *Client) Update(ctx context.Context, store, doc ids.DocId) (uint64, ids.RevId, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, store.Bytes())
	b.PutBytes(2, doc.Bytes())
	msg, err := c.call(ctx, "Update", wire.MsgUpdate, b.Bytes())
	if err != nil {
		return 0, "", err
	}
	handle, _ := msg.Uint64(1)
	rev, _ := msg.Bytes(2)
	return handle, ids.NewRevId(rev), nil
}

// Resume reopens a previously suspended revision for further editing.
func (c *Client) Resume(ctx context.Context, store, doc ids.DocId, rev ids.RevId) (uint64, error) {
	b := rpcbody.NewBuilder()
	b.PutBytes(1, store.Bytes())
	b.PutBytes(2, doc.Bytes())
	b.PutBytes(3, rev.Bytes())
	msg, err := c.call(ctx, "Resume", wire.MsgResume, b.Bytes())
	if err != nil {
		return 0, err
	}
	handle, _ := msg.Uint64(1)
	return handle, nil
}

// GetType returns a session's document type string.
func (c *Client) GetType(ctx context.Context, handle uint64) (string, error) {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	msg, err := c.call(ctx, "GetType", wire.MsgGetType, b.Bytes())
	if err != nil {
		return "", err
	}
	typ, _ := msg.String(1)
	return typ, nil
}

// ReadAttachment reads length bytes of part starting at offset, bounded by
// MaxPacketSize by the caller (document package does the chunking loop).
func (c *Client) ReadAttachment(ctx context.Context, handle uint64, part ids.PartId, offset uint64, length uint32) ([]byte, error) {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutBytes(2, part.Bytes())
	b.PutUint64(3, offset)
	b.PutUint64(4, uint64(length))
	msg, err := c.call(ctx, "Read", wire.MsgRead, b.Bytes())
	if err != nil {
		return nil, err
	}
	data, _ := msg.Bytes(1)
	return data, nil
}

// Trunc truncates part to offset bytes.
func (c *Client) Trunc(ctx context.Context, handle uint64, part ids.PartId, offset uint64) error {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutBytes(2, part.Bytes())
	b.PutUint64(3, offset)
	_, err := c.call(ctx, "Trunc", wire.MsgTrunc, b.Bytes())
	return err
}

// WriteBuffer stages a chunk of data server-side ahead of WriteCommit.
func (c *Client) WriteBuffer(ctx context.Context, handle uint64, part ids.PartId, data []byte) error {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutBytes(2, part.Bytes())
	b.PutBytes(3, data)
	_, err := c.call(ctx, "WriteBuffer", wire.MsgWriteBuffer, b.Bytes())
	return err
}

// WriteCommit finalizes a write: it carries the final slice's data itself
//, committing both the previously staged WriteBuffer chunks and this
// last piece as one write positioned at offset, the write's starting
// offset (not this slice's own offset within the attachment).
func (c *Client) WriteCommit(ctx context.Context, handle uint64, part ids.PartId, offset uint64, data []byte) error {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutBytes(2, part.Bytes())
	b.PutUint64(3, offset)
	b.PutBytes(4, data)
	_, err := c.call(ctx, "WriteCommit", wire.MsgWriteCommit, b.Bytes())
	return err
}

// GetData reads the structured value at path within a session's document.
func (c *Client) GetData(ctx context.Context, handle uint64, path string, store ids.DocId) (value.Value, error) {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutString(2, path)
	msg, err := c.call(ctx, "GetData", wire.MsgGetData, b.Bytes())
	if err != nil {
		return value.Value{}, err
	}
	raw, ok := msg.Bytes(1)
	if !ok {
		return value.Value{}, newErr("GetData", CodeBadRPC, fmt.Errorf("missing value field"))
	}
	v, _, err := value.Decode(raw, store)
	if err != nil {
		return value.Value{}, newErr("GetData", CodeValue, err)
	}
	return v, nil
}

// SetData writes the structured value at path within a session's document.
func (c *Client) SetData(ctx context.Context, handle uint64, path string, v value.Value) error {
	enc, err := value.Encode(v)
	if err != nil {
		return newErr("SetData", CodeValue, err)
	}
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutString(2, path)
	b.PutBytes(3, enc)
	_, err = c.call(ctx, "SetData", wire.MsgSetData, b.Bytes())
	return err
}

// Commit finalizes a writable session into a new revision carrying comment
// as its change description.
func (c *Client) Commit(ctx context.Context, handle uint64, comment string) (ids.RevId, error) {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutString(2, comment)
	msg, err := c.call(ctx, "Commit", wire.MsgCommit, b.Bytes())
	if err != nil {
		return "", err
	}
	rev, _ := msg.Bytes(1)
	return ids.NewRevId(rev), nil
}

// Suspend parks in-progress work as a named preliminary revision.
func (c *Client) Suspend(ctx context.Context, handle uint64, comment string) (ids.RevId, error) {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	b.PutString(2, comment)
	msg, err := c.call(ctx, "Suspend", wire.MsgSuspend, b.Bytes())
	if err != nil {
		return "", err
	}
	rev, _ := msg.Bytes(1)
	return ids.NewRevId(rev), nil
}

// CloseSession releases a session handle. Safe to call on an already-closed
// handle from the daemon's point of view is not guaranteed; the document
// package ensures it is only ever called once per handle.
func (c *Client) CloseSession(ctx context.Context, handle uint64) error {
	b := rpcbody.NewBuilder()
	b.PutUint64(1, handle)
	_, err := c.call(ctx, "Close", wire.MsgClose, b.Bytes())
	return err
}

// --- watch / progress convenience wrappers ---------------------------------

// Watch subscribes to changes on a document or revision.
func (c *Client) Watch(ctx context.Context, kind WatchKind, element []byte) (*Watch, error) {
	return c.watch.Add(ctx, kind, element)
}

// Progress subscribes to the daemon's task progress stream.
func (c *Client) Progress(ctx context.Context) (*ProgressSub, error) {
	return c.progress.Subscribe(ctx)
}
