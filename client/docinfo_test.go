package client

import (
	"context"
	"testing"
	"time"

	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
	"github.com/orbaslabs/peerdrive/link"
)

func encodeLinkTuple(kind uint64, store, doc, rev []byte) []byte {
	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldLinkKind, kind)
	if store != nil {
		b.PutBytes(rpcbody.FieldLinkStore, store)
	}
	if doc != nil {
		b.PutBytes(rpcbody.FieldLinkDoc, doc)
	}
	if rev != nil {
		b.PutBytes(rpcbody.FieldLinkRev, rev)
	}
	return b.Bytes()
}

func TestDocInfoDecodesStoresAndRevs(t *testing.T) {
	cl, conn, cleanup := dialMock(t, 65536)
	defer cleanup()

	store := []byte("store-0000000001")
	doc := []byte("doc-0000000001ab")
	headRev := []byte{0xAA}
	preRev := []byte{0xBB}

	go func() {
		f, err := conn.ReadFrame()
		if err != nil {
			return
		}
		if f.Code != wire.MsgLookupDoc {
			_ = conn.ReplyError(f, 1, "unexpected message")
			return
		}

		storeEntry := rpcbody.NewBuilder()
		storeEntry.PutBytes(rpcbody.FieldStoreEntryStore, store)
		storeEntry.PutBytes(rpcbody.FieldStoreEntryHeadLink, encodeLinkTuple(1, store, doc, nil))
		storeEntry.PutBytes(rpcbody.FieldStoreEntryPreRevLink, encodeLinkTuple(2, store, doc, preRev))

		revEntry := rpcbody.NewBuilder()
		revEntry.PutBytes(rpcbody.FieldRevEntryRev, headRev)
		revEntry.PutBytes(rpcbody.FieldRevEntryHeadStores, store)

		body := rpcbody.NewBuilder()
		body.PutBytes(rpcbody.FieldDocInfoStoreEntry, storeEntry.Bytes())
		body.PutBytes(rpcbody.FieldDocInfoRevEntry, revEntry.Bytes())
		_ = conn.Reply(f, body.Bytes())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := cl.DocInfo(ctx, ids.NewDocId(doc))
	if err != nil {
		t.Fatalf("DocInfo: %v", err)
	}

	if len(got.Stores) != 1 {
		t.Fatalf("got %d store entries, want 1", len(got.Stores))
	}
	se := got.Stores[0]
	if se.Store != ids.NewDocId(store) {
		t.Fatalf("store mismatch: %v", se.Store)
	}
	if se.HeadLink.Kind() != link.DocHeadKind {
		t.Fatalf("expected HeadLink to decode as doc-head, got kind %v", se.HeadLink.Kind())
	}
	if se.HeadLink.Doc() != ids.NewDocId(doc) {
		t.Fatalf("HeadLink doc mismatch: %v", se.HeadLink.Doc())
	}
	if len(se.PreRevLinks) != 1 {
		t.Fatalf("got %d pre-rev links, want 1", len(se.PreRevLinks))
	}
	if se.PreRevLinks[0].Kind() != link.DocPreRevKind {
		t.Fatalf("expected PreRevLinks[0] to decode as doc-pre-rev, got kind %v", se.PreRevLinks[0].Kind())
	}
	if se.PreRevLinks[0].Rev() != ids.NewRevId(preRev) {
		t.Fatalf("PreRevLinks[0] rev mismatch: %v", se.PreRevLinks[0].Rev())
	}

	if len(got.Revs) != 1 {
		t.Fatalf("got %d rev entries, want 1", len(got.Revs))
	}
	re := got.Revs[0]
	if re.Rev != ids.NewRevId(headRev) {
		t.Fatalf("rev mismatch: %v", re.Rev)
	}
	if len(re.HeadStores) != 1 || re.HeadStores[0] != ids.NewDocId(store) {
		t.Fatalf("head stores mismatch: %v", re.HeadStores)
	}
}
