// Package ids defines the opaque, binary-safe identifier types shared across
// the PeerDrive client: document, revision and attachment-part identifiers.
package ids

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// DocId identifies a document across its lifetime. It is stored as a Go
// string so that values are immutable, comparable and directly usable as map
// keys — the idiomatic stand-in for a "binary-opaque byte string" in Go.
type DocId string

// RevId identifies an immutable revision by content hash.
type RevId string

// PartId identifies an attachment stream within a revision.
type PartId string

// Zero is the reserved all-zero DocId used by the folder model to denote the
// synthetic "collection of mounted stores" root.
var Zero = DocId(make([]byte, 16))

// NewDocId copies b into a new DocId.
func NewDocId(b []byte) DocId { return DocId(append([]byte(nil), b...)) }

// NewRevId copies b into a new RevId.
func NewRevId(b []byte) RevId { return RevId(append([]byte(nil), b...)) }

// NewPartId copies b into a new PartId.
func NewPartId(b []byte) PartId { return PartId(append([]byte(nil), b...)) }

// DocIdFromHex parses a hex-encoded document id.
func DocIdFromHex(s string) (DocId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("ids: invalid doc hex %q: %w", s, err)
	}
	return DocId(b), nil
}

// RevIdFromHex parses a hex-encoded revision id.
func RevIdFromHex(s string) (RevId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("ids: invalid rev hex %q: %w", s, err)
	}
	return RevId(b), nil
}

// Bytes returns the raw byte representation.
func (d DocId) Bytes() []byte { return []byte(d) }
func (r RevId) Bytes() []byte { return []byte(r) }
func (p PartId) Bytes() []byte { return []byte(p) }

// Hex renders the identifier as lowercase hex, the form used by the
// doc:/rev: URI surface.
func (d DocId) Hex() string { return hex.EncodeToString([]byte(d)) }
func (r RevId) Hex() string { return hex.EncodeToString([]byte(r)) }
func (p PartId) Hex() string { return hex.EncodeToString([]byte(p)) }

func (d DocId) IsZero() bool { return d == Zero || allZero([]byte(d)) }

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (d DocId) String() string { return "doc:" + d.Hex() }

// String renders the revision id in CID form for logs and debug output only.
// This is a display convenience grounded on the content-hash nature of
// revisions; the wire encoding of a RevId is always the raw opaque
// bytes and never this rendering.
func (r RevId) String() string {
	sum, err := mh.Sum([]byte(r), mh.SHA2_256, -1)
	if err != nil {
		return "rev:" + r.Hex()
	}
	c := cid.NewCidV1(cid.Raw, sum)
	return c.String()
}

func (p PartId) String() string { return p.Hex() }
