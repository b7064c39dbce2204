package foldermodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/internal/mockdaemon"
	"github.com/orbaslabs/peerdrive/internal/rpcbody"
	"github.com/orbaslabs/peerdrive/internal/wire"
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

// runFakeDaemon answers just enough of the protocol to drive a root fetch
// into a single mounted, childless store: Enum, Update, GetType, GetData
// (empty children list), Stat, WatchAdd and Close.
func runFakeDaemon(t *testing.T, mountSID []byte) (*client.Client, func()) {
	t.Helper()
	srv, err := mockdaemon.Listen()
	if err != nil {
		t.Fatalf("mockdaemon.Listen: %v", err)
	}

	go func() {
		conn, err := srv.Accept()
		if err != nil {
			return
		}
		if _, err := conn.Handshake(4096); err != nil {
			return
		}
		const handle = uint64(7)
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			switch f.Code {
			case wire.MsgEnum:
				mount := rpcbody.NewBuilder()
				mount.PutBytes(rpcbody.FieldMountSID, mountSID)
				mount.PutString(rpcbody.FieldMountSrc, "/tmp/store")
				mount.PutString(rpcbody.FieldMountType, "file")
				mount.PutString(rpcbody.FieldMountLabel, "root")
				b := rpcbody.NewBuilder()
				b.PutBytes(1, mount.Bytes())
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgUpdate:
				b := rpcbody.NewBuilder()
				b.PutUint64(1, handle)
				b.PutBytes(2, mountSID)
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgGetType:
				b := rpcbody.NewBuilder()
				b.PutString(1, "org.peerdrive.folder")
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgGetData:
				b := rpcbody.NewBuilder() // no list field: empty children
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgStat:
				b := rpcbody.NewBuilder()
				b.PutString(rpcbody.FieldRevType, "org.peerdrive.folder")
				b.PutUint64(rpcbody.FieldRevDataSize, 0)
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgWatchAdd, wire.MsgWatchRem, wire.MsgClose:
				_ = conn.Reply(f, nil)
			default:
				_ = conn.Reply(f, nil)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cl, err := client.Dial(ctx, client.Endpoint{Addr: srv.Addr(), Cookie: []byte("c")})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return cl, func() { cl.Close(); srv.Close() }
}

func waitForBatch(t *testing.T, m *Model, want int) []Update {
	t.Helper()
	var got []Update
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case batch, ok := <-m.Updates():
			if !ok {
				t.Fatalf("Updates channel closed early, have %d of %d", len(got), want)
			}
			got = append(got, batch...)
		case <-deadline:
			t.Fatalf("timed out waiting for %d updates, have %d: %+v", want, len(got), got)
		}
	}
	return got
}

func TestOpenDiscoversMountedStoreAsRootChild(t *testing.T) {
	mountSID := []byte("store-1234567890")
	cl, cleanup := runFakeDaemon(t, mountSID)
	defer cleanup()

	root := link.NewDocHead(ids.Zero, ids.Zero, "")
	m := Open(cl, root, []ColumnKey{ColSize, ColType}, WithBatchInterval(20*time.Millisecond))
	defer m.Close()

	batch := waitForBatch(t, m, 3) // root Added, mount Added, mount ParentFetched (childless)

	var sawMountAdded, sawParentFetched bool
	for _, u := range batch {
		if u.Kind == Added && u.Info.Link.IsDocLink() && u.Info.Link.Doc().Hex() == ids.NewDocId(mountSID).Hex() {
			sawMountAdded = true
		}
		if u.Kind == ParentFetched && u.Info.Link.IsDocLink() && u.Info.Link.Doc().Hex() == ids.NewDocId(mountSID).Hex() {
			sawParentFetched = true
		}
	}
	require.True(t, sawMountAdded, "expected an Added update for the mounted store, got %+v", batch)
	require.True(t, sawParentFetched, "expected a ParentFetched update for the childless mounted store, got %+v", batch)

	children := m.Children(m.Root())
	require.Len(t, children, 1)

	info, ok := m.Snapshot(children[0])
	require.True(t, ok, "Snapshot of root child: not found")
	require.Equal(t, "org.peerdrive.folder", info.TypeCode)
}

// runFolderDaemon answers the protocol for a two-level tree: a folder
// document with exactly one childless child. Update hands out handle 1 for
// the root document and handle 2 for the child, so GetData can tell them
// apart. The returned Conn lets the test inject Watch indications.
func runFolderDaemon(t *testing.T, store, rootDoc, childDoc []byte) (*client.Client, *mockdaemon.Conn, func()) {
	t.Helper()
	srv, err := mockdaemon.Listen()
	if err != nil {
		t.Fatalf("mockdaemon.Listen: %v", err)
	}

	connCh := make(chan *mockdaemon.Conn, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			return
		}
		if _, err := conn.Handshake(4096); err != nil {
			return
		}
		connCh <- conn
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			switch f.Code {
			case wire.MsgUpdate:
				msg, _ := rpcbody.Parse(f.Payload)
				doc, _ := msg.Bytes(2)
				handle := uint64(1)
				if string(doc) == string(childDoc) {
					handle = 2
				}
				b := rpcbody.NewBuilder()
				b.PutUint64(1, handle)
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgGetType:
				b := rpcbody.NewBuilder()
				b.PutString(1, "org.peerdrive.folder")
				_ = conn.Reply(f, b.Bytes())
			case wire.MsgGetData:
				msg, _ := rpcbody.Parse(f.Payload)
				handle, _ := msg.Uint64(1)
				children := value.List()
				if handle == 1 {
					children = value.List(value.DocLink(childDoc))
				}
				enc, _ := value.Encode(children)
				b := rpcbody.NewBuilder()
				b.PutBytes(1, enc)
				_ = conn.Reply(f, b.Bytes())
			default:
				_ = conn.Reply(f, nil)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cl, err := client.Dial(ctx, client.Endpoint{Addr: srv.Addr(), Cookie: []byte("c")})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	select {
	case conn := <-connCh:
		return cl, conn, func() { cl.Close(); srv.Close() }
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for daemon handshake")
		return nil, nil, nil
	}
}

func TestWatchInvalidationRefetchesChild(t *testing.T) {
	store := []byte("store-1234567890")
	rootDoc := []byte("rootdoc-12345678")
	childDoc := []byte("childdoc-1234567")
	cl, conn, cleanup := runFolderDaemon(t, store, rootDoc, childDoc)
	defer cleanup()

	root := link.NewDocHead(ids.NewDocId(store), ids.NewDocId(rootDoc), "")
	m := Open(cl, root, nil, WithBatchInterval(20*time.Millisecond))
	defer m.Close()

	isChild := func(u Update) bool {
		return u.Info.Link.IsDocLink() && u.Info.Link.Doc() == ids.NewDocId(childDoc)
	}

	// First pass: the child appears and completes its first fetch.
	initial := waitForBatch(t, m, 3)
	var sawChildAdded bool
	for _, u := range initial {
		if u.Kind == Added && isChild(u) {
			sawChildAdded = true
		}
	}
	require.True(t, sawChildAdded, "expected the child's first fetch, got %+v", initial)

	// A Modified indication for the child must re-enqueue it and produce a
	// fresh Changed snapshot.
	b := rpcbody.NewBuilder()
	b.PutUint64(rpcbody.FieldWatchKind, uint64(client.WatchDoc))
	b.PutBytes(rpcbody.FieldWatchElement, childDoc)
	b.PutUint64(rpcbody.FieldWatchEvent, uint64(client.EventModified))
	b.PutBytes(rpcbody.FieldWatchStore, store)
	require.NoError(t, conn.Indicate(wire.MsgWatch, b.Bytes()))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-m.Updates():
			for _, u := range batch {
				if u.Kind == Changed && isChild(u) {
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for the child's Changed update")
		}
	}
}

// staticConformer answers conformance from a fixed set, standing in for
// domain.Registry's recursive walk.
type staticConformer map[string]bool

func (c staticConformer) Conformes(uti, superClass string) bool {
	return superClass == "org.peerdrive.folder" && c[uti]
}

func TestFolderClassificationUsesConformance(t *testing.T) {
	m := &Model{}

	// Without a registry only the folder UTI itself qualifies.
	require.True(t, m.isFolderType("org.peerdrive.folder"))
	require.False(t, m.isFolderType("com.example.folder-notes"),
		"a name resembling the folder UTI must not classify as one")

	// With a registry, conformance through the conforming chain decides —
	// regardless of what the type code is called.
	m.conf = staticConformer{"com.example.album": true}
	require.True(t, m.isFolderType("com.example.album"))
	require.False(t, m.isFolderType("com.example.folder-notes"))
}

func TestCloseStopsWorkerAndClosesUpdates(t *testing.T) {
	mountSID := []byte("store-abcdefghij")
	cl, cleanup := runFakeDaemon(t, mountSID)
	defer cleanup()

	root := link.NewDocHead(ids.Zero, ids.Zero, "")
	m := Open(cl, root, nil)
	waitForBatch(t, m, 1)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "second Close should be a no-op")

	select {
	case _, ok := <-m.Updates():
		if ok {
			t.Fatalf("expected Updates channel to be closed and drained")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Updates channel to close")
	}
}
