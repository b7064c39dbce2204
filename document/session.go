// Package document implements the client-side document session state
// machine: Closed -> Open(Peek|Update|Resume) -> commit/suspend/close,
// plus the structured-data and chunked-attachment operations that only make
// sense against an open handle.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/link"
	"github.com/orbaslabs/peerdrive/value"
)

// Mode identifies how a Session was opened.
type Mode int

const (
	ModePeek Mode = iota
	ModeUpdate
	ModeResume
)

func (m Mode) String() string {
	switch m {
	case ModePeek:
		return "peek"
	case ModeUpdate:
		return "update"
	case ModeResume:
		return "resume"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by any operation on an already-closed session.
var ErrClosed = errors.New("document: session is closed")

// ErrReadOnly is returned by Set/Write/Truncate/Commit/Suspend on a
// Peek-mode session.
var ErrReadOnly = errors.New("document: session is read-only")

// Session is a single open handle on a document revision. It tracks the
// link it was opened through; Commit and Suspend update that link in place
// (commit makes it a DocHead at the new revision, suspend a DocPreRev), so
// the caller's next open through Link targets the revision just produced.
type Session struct {
	c    *client.Client
	mode Mode

	mu     sync.Mutex
	lnk    link.Link
	handle uint64
	closed bool
}

// Open opens l according to its kind: a revision link is peeked, a
// preliminary revision resumed, a document head updated. Invalid links are
// rejected.
func Open(ctx context.Context, c *client.Client, l link.Link) (*Session, error) {
	switch l.Kind() {
	case link.RevLinkKind:
		s, err := Peek(ctx, c, l.Rev())
		if err != nil {
			return nil, err
		}
		s.lnk = l // keep the caller's store scope
		return s, nil
	case link.DocPreRevKind:
		return Resume(ctx, c, l.Store(), l.Doc(), l.Rev())
	case link.DocHeadKind:
		return Update(ctx, c, l.Store(), l.Doc())
	default:
		return nil, link.ErrInvalid
	}
}

// Peek opens a read-only session on an immutable revision.
func Peek(ctx context.Context, c *client.Client, rev ids.RevId) (*Session, error) {
	h, err := c.Peek(ctx, rev)
	if err != nil {
		return nil, err
	}
	return &Session{c: c, mode: ModePeek, lnk: link.NewRevLink("", rev), handle: h}, nil
}

// Update opens a writable session positioned at a store's current head for
// doc.
func Update(ctx context.Context, c *client.Client, store, doc ids.DocId) (*Session, error) {
	h, rev, err := c.Update(ctx, store, doc)
	if err != nil {
		return nil, err
	}
	return &Session{c: c, mode: ModeUpdate, lnk: link.NewDocHead(store, doc, rev), handle: h}, nil
}

// Link returns the session's tracking link. After a successful Commit it is
// a DocHead at the committed revision; after Suspend, a DocPreRev.
func (s *Session) Link() link.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lnk
}

// Rev returns the revision this handle is currently positioned at. It is
// empty for an Update session whose head rev the daemon did not echo back
// (resolved only once Commit succeeds).
func (s *Session) Rev() ids.RevId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lnk.Rev()
}

// Resume reopens a previously suspended revision for further editing.
func Resume(ctx context.Context, c *client.Client, store, doc ids.DocId, rev ids.RevId) (*Session, error) {
	h, err := c.Resume(ctx, store, doc, rev)
	if err != nil {
		return nil, err
	}
	return &Session{c: c, mode: ModeResume, lnk: link.NewDocPreRev(store, doc, rev), handle: h}, nil
}

// Mode reports how the session was opened.
func (s *Session) Mode() Mode { return s.mode }

func (s *Session) checkOpen() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.handle, nil
}

func (s *Session) checkWritable() (uint64, error) {
	h, err := s.checkOpen()
	if err != nil {
		return 0, err
	}
	if s.mode == ModePeek {
		return 0, ErrReadOnly
	}
	return h, nil
}

// Type returns the document's type string.
func (s *Session) Type(ctx context.Context) (string, error) {
	h, err := s.checkOpen()
	if err != nil {
		return "", err
	}
	return s.c.GetType(ctx, h)
}

// Get reads the structured value at path.
func (s *Session) Get(ctx context.Context, path string) (value.Value, error) {
	h, err := s.checkOpen()
	if err != nil {
		return value.Value{}, err
	}
	return s.c.GetData(ctx, h, path, s.Link().Store())
}

// Set writes the structured value at path. Not permitted on a Peek session.
func (s *Session) Set(ctx context.Context, path string, v value.Value) error {
	h, err := s.checkWritable()
	if err != nil {
		return err
	}
	return s.c.SetData(ctx, h, path, v)
}

// ReadAttachment reads length bytes of part starting at offset, splitting
// the request into MaxPacketSize-bounded chunks transparently.
func (s *Session) ReadAttachment(ctx context.Context, part ids.PartId, offset uint64, length uint64) ([]byte, error) {
	h, err := s.checkOpen()
	if err != nil {
		return nil, err
	}
	chunk := uint64(s.c.MaxPacketSize())
	if chunk == 0 {
		chunk = length
	}
	out := make([]byte, 0, length)
	for remaining := length; remaining > 0; {
		n := remaining
		if n > chunk {
			n = chunk
		}
		data, err := s.c.ReadAttachment(ctx, h, part, offset, uint32(n))
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		if uint64(len(data)) < n {
			break // short read: attachment ended before length was satisfied
		}
		offset += n
		remaining -= n
	}
	return out, nil
}

// WriteAttachment writes data into part at offset. All but the last
// MaxPacketSize-bounded slice are staged with WriteBuffer; the final slice
// is never buffered separately, but carried directly by a single
// WriteCommit alongside offset, the write's starting position — exactly
// one WriteCommit per call, regardless of how many WriteBuffer chunks
// preceded it.
func (s *Session) WriteAttachment(ctx context.Context, part ids.PartId, offset uint64, data []byte) error {
	h, err := s.checkWritable()
	if err != nil {
		return err
	}
	chunk := int(s.c.MaxPacketSize())
	if chunk <= 0 {
		chunk = len(data)
	}
	for len(data) > chunk {
		if err := s.c.WriteBuffer(ctx, h, part, data[:chunk]); err != nil {
			return err
		}
		data = data[chunk:]
	}
	return s.c.WriteCommit(ctx, h, part, offset, data)
}

// TruncateAttachment truncates part to offset bytes.
func (s *Session) TruncateAttachment(ctx context.Context, part ids.PartId, offset uint64) error {
	h, err := s.checkWritable()
	if err != nil {
		return err
	}
	return s.c.Trunc(ctx, h, part, offset)
}

// WriteAllAttachment replaces part's entire content with data:
// defined as truncating to empty, announcing the final size, and writing
// the full content from offset zero — wiping the old content outright
// rather than leaving stale bytes past the new, shorter length.
func (s *Session) WriteAllAttachment(ctx context.Context, part ids.PartId, data []byte) error {
	if err := s.TruncateAttachment(ctx, part, 0); err != nil {
		return err
	}
	if err := s.TruncateAttachment(ctx, part, uint64(len(data))); err != nil {
		return err
	}
	return s.WriteAttachment(ctx, part, 0, data)
}

// Commit finalizes the session into a new revision and transitions it back
// to Closed; the tracking link becomes a DocHead at the committed revision.
// Not permitted on a Peek session.
func (s *Session) Commit(ctx context.Context, comment string) (ids.RevId, error) {
	h, err := s.checkWritable()
	if err != nil {
		return "", err
	}
	rev, err := s.c.Commit(ctx, h, comment)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.closed = true
	s.lnk = link.NewDocHead(s.lnk.Store(), s.lnk.Doc(), rev)
	s.mu.Unlock()
	return rev, nil
}

// Suspend parks in-progress edits as a named preliminary revision and
// transitions the session back to Closed; the tracking link becomes a
// DocPreRev at the suspended revision.
func (s *Session) Suspend(ctx context.Context, comment string) (ids.RevId, error) {
	h, err := s.checkWritable()
	if err != nil {
		return "", err
	}
	rev, err := s.c.Suspend(ctx, h, comment)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.closed = true
	s.lnk = link.NewDocPreRev(s.lnk.Store(), s.lnk.Doc(), rev)
	s.mu.Unlock()
	return rev, nil
}

// Close releases the session handle. Idempotent: calling it more than once
// is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h := s.handle
	s.mu.Unlock()

	if err := s.c.CloseSession(ctx, h); err != nil {
		return fmt.Errorf("document: close handle %d: %w", h, err)
	}
	return nil
}
