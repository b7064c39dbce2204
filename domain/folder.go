package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/link"
)

// Folder is the stateless path-lookup helper:
// translating a "store-label:dotted/path" string into links via one
// WalkPath RPC. Unlike FSTab/Registry/SyncRules it does not watch anything
// or cache a snapshot — every call is a fresh daemon round-trip.
type Folder struct {
	c      *client.Client
	labels map[string]ids.DocId // store label -> sid, refreshed from Mounts
}

// NewFolder builds a Folder helper bound to c. Labels are resolved lazily on
// first Lookup call and cached until RefreshMounts is called.
func NewFolder(c *client.Client) *Folder {
	return &Folder{c: c}
}

// RefreshMounts re-reads the daemon's mount table so newly mounted stores'
// labels become resolvable.
func (f *Folder) RefreshMounts(ctx context.Context) error {
	mounts, err := f.c.Mounts(ctx)
	if err != nil {
		return fmt.Errorf("domain: refreshing mounts: %w", err)
	}
	labels := make(map[string]ids.DocId, len(mounts))
	for _, m := range mounts {
		labels[m.Label] = m.SID
	}
	f.labels = labels
	return nil
}

// Lookup resolves "store-label:dotted/path" to links by issuing a WalkPath
// RPC against the named store. An empty dotted path resolves to the store's
// root. The WalkPath reply carries a single document id, so the result holds
// zero links (no document found) or exactly one; it never holds more than
// one.
func (f *Folder) Lookup(ctx context.Context, path string) ([]link.Link, error) {
	store, rest, err := f.splitPath(ctx, path)
	if err != nil {
		return nil, err
	}
	doc, err := f.c.WalkPath(ctx, store, rest)
	if err != nil {
		return nil, err
	}
	if doc == "" {
		return nil, nil
	}
	return []link.Link{link.NewDocHead(store, doc, "")}, nil
}

// LookupSingle is Lookup but fails unless exactly one match is found; it is
// the primitive well-known-document discovery ("sys:fstab", etc.) is
// built on.
func (f *Folder) LookupSingle(ctx context.Context, path string) (link.Link, error) {
	links, err := f.Lookup(ctx, path)
	if err != nil {
		return link.Link{}, err
	}
	if len(links) != 1 {
		return link.Link{}, fmt.Errorf("domain: lookup %q: expected exactly one match, got %d", path, len(links))
	}
	return links[0], nil
}

func (f *Folder) splitPath(ctx context.Context, path string) (ids.DocId, string, error) {
	colon := strings.IndexByte(path, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("domain: malformed lookup path %q: missing store-label prefix", path)
	}
	label, rest := path[:colon], path[colon+1:]

	if f.labels == nil {
		if err := f.RefreshMounts(ctx); err != nil {
			return "", "", err
		}
	}
	store, ok := f.labels[label]
	if !ok {
		if err := f.RefreshMounts(ctx); err != nil {
			return "", "", err
		}
		store, ok = f.labels[label]
		if !ok {
			return "", "", fmt.Errorf("domain: no mounted store labeled %q", label)
		}
	}
	return store, rest, nil
}
