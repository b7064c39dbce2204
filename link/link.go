// Package link implements the Link abstraction: a four-state reference
// to a document or revision scoped to a store.
package link

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/value"
)

// HeadResolver is the minimal daemon capability Resolve needs: opening an
// Update session long enough to learn the store's current head revision
// for a document, then discarding the handle without committing.
// *client.Client satisfies this structurally; link deliberately does not
// import the client package by name, since client already depends on
// info, which depends on link for its DocInfo link fields — importing
// client here would close that into a cycle.
type HeadResolver interface {
	Update(ctx context.Context, store, doc ids.DocId) (uint64, ids.RevId, error)
	CloseSession(ctx context.Context, handle uint64) error
}

// Kind enumerates the four Link variants.
type Kind int

const (
	Invalid Kind = iota
	RevLinkKind
	DocHeadKind
	DocPreRevKind
)

func (k Kind) String() string {
	switch k {
	case RevLinkKind:
		return "rev-link"
	case DocHeadKind:
		return "doc-head"
	case DocPreRevKind:
		return "doc-pre-rev"
	default:
		return "invalid"
	}
}

// Link is a sum type over the four reference variants. The zero value is
// Invalid.
type Link struct {
	kind  Kind
	store ids.DocId
	doc   ids.DocId
	rev   ids.RevId
}

var (
	// ErrNotLink is returned when converting a non-link Value.
	ErrNotLink = errors.New("link: value does not hold a link")
	// ErrInvalid is returned for operations on an Invalid link.
	ErrInvalid = errors.New("link: invalid link")
	// ErrMalformedURI is returned by ParseURI for malformed input.
	ErrMalformedURI = errors.New("link: malformed uri")
)

// NewRevLink builds a concrete revision reference.
func NewRevLink(store ids.DocId, rev ids.RevId) Link {
	return Link{kind: RevLinkKind, store: store, rev: rev}
}

// NewDocHead builds a reference to a document's current head. rev may be
// empty if not yet resolved.
func NewDocHead(store, doc ids.DocId, rev ids.RevId) Link {
	return Link{kind: DocHeadKind, store: store, doc: doc, rev: rev}
}

// NewDocPreRev builds a reference to a named preliminary revision.
func NewDocPreRev(store, doc ids.DocId, rev ids.RevId) Link {
	return Link{kind: DocPreRevKind, store: store, doc: doc, rev: rev}
}

func (l Link) Kind() Kind { return l.kind }
func (l Link) Store() ids.DocId { return l.store }
func (l Link) Doc() ids.DocId { return l.doc }
func (l Link) Rev() ids.RevId { return l.rev }

// IsValid reports whether the link is anything other than Invalid.
func (l Link) IsValid() bool { return l.kind != Invalid }

// IsDocLink reports whether the link addresses a document rather than a
// concrete, immutable revision.
func (l Link) IsDocLink() bool { return l.kind == DocHeadKind || l.kind == DocPreRevKind }

// WithRev returns a copy of l with its rev field replaced; used by Resolve.
func (l Link) WithRev(rev ids.RevId) Link {
	l.rev = rev
	return l
}

// Resolve replaces a DocHead link's rev field with the current head as
// reported by the daemon. It opens and immediately discards an Update
// session against the link's store and doc — the same RPC a writer would
// use to position itself at the head, here used purely to read the head
// rev it reports back. RevLink and DocPreRev links already name a fixed
// revision and are returned unchanged; an Invalid link fails. On any
// failure the original link is returned unchanged, so a failed Resolve
// never mutates the link's kind.
func (l Link) Resolve(ctx context.Context, c HeadResolver) (Link, error) {
	switch l.kind {
	case Invalid:
		return l, ErrInvalid
	case RevLinkKind, DocPreRevKind:
		return l, nil
	}

	handle, rev, err := c.Update(ctx, l.store, l.doc)
	if err != nil {
		return l, err
	}
	_ = c.CloseSession(ctx, handle)
	if rev == "" {
		return l, fmt.Errorf("link: resolve %s: daemon reported no head revision", l.doc.Hex())
	}
	return l.WithRev(rev), nil
}

func (l Link) Equal(o Link) bool {
	return l.kind == o.kind && l.store == o.store && l.doc == o.doc && l.rev == o.rev
}

// URI serializes the link to the doc:/rev: form exchanged with the host
// system. Invalid links have no URI form.
func (l Link) URI() (string, error) {
	switch l.kind {
	case RevLinkKind:
		return fmt.Sprintf("rev:%s:%s", l.store.Hex(), l.rev.Hex()), nil
	case DocHeadKind, DocPreRevKind:
		return fmt.Sprintf("doc:%s:%s", l.store.Hex(), l.doc.Hex()), nil
	default:
		return "", ErrInvalid
	}
}

func (l Link) String() string {
	if u, err := l.URI(); err == nil {
		return u
	}
	return "invalid"
}

// ParseURI parses the doc:/rev: forms. Malformed or non-hex input is
// rejected. A parsed doc: URI always yields a DocHead with an empty
// (unresolved) rev.
func ParseURI(s string) (Link, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Link{}, fmt.Errorf("%w: %q", ErrMalformedURI, s)
	}
	scheme, storeHex, idHex := parts[0], parts[1], parts[2]
	if storeHex == "" || idHex == "" {
		return Link{}, fmt.Errorf("%w: empty store or id in %q", ErrMalformedURI, s)
	}

	store, err := ids.DocIdFromHex(storeHex)
	if err != nil {
		return Link{}, fmt.Errorf("%w: store: %v", ErrMalformedURI, err)
	}

	switch scheme {
	case "rev":
		rev, err := ids.RevIdFromHex(idHex)
		if err != nil {
			return Link{}, fmt.Errorf("%w: rev: %v", ErrMalformedURI, err)
		}
		return NewRevLink(store, rev), nil
	case "doc":
		doc, err := ids.DocIdFromHex(idHex)
		if err != nil {
			return Link{}, fmt.Errorf("%w: doc: %v", ErrMalformedURI, err)
		}
		return NewDocHead(store, doc, ""), nil
	default:
		return Link{}, fmt.Errorf("%w: unknown scheme %q", ErrMalformedURI, scheme)
	}
}

// ToValue converts the link to the daemon's structured-value link
// representation: a rev-link for RevLinkKind, a doc-link for the two
// document-addressing kinds. The store is never part of the encoding.
func (l Link) ToValue() (value.Value, error) {
	switch l.kind {
	case RevLinkKind:
		return value.RevLink(l.rev.Bytes()), nil
	case DocHeadKind, DocPreRevKind:
		return value.DocLink(l.doc.Bytes()), nil
	default:
		return value.Value{}, ErrInvalid
	}
}

// FromValue reconstructs a Link from a decoded structured value, using the
// store the decoder already attached to v. rev-link values produce a
// RevLink; doc-link values produce a DocHead with an empty rev, mirroring
// ParseURI's doc: handling.
func FromValue(v value.Value) (Link, error) {
	id, isDoc, store, ok := v.LinkInfo()
	if !ok {
		return Link{}, ErrNotLink
	}
	if isDoc {
		return NewDocHead(store, ids.NewDocId(id), ""), nil
	}
	return NewRevLink(store, ids.NewRevId(id)), nil
}
