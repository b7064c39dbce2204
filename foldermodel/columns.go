package foldermodel

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orbaslabs/peerdrive/info"
	"github.com/orbaslabs/peerdrive/value"
)

// ColumnKey names one displayable column. A builtin key starts with
// ":" and is served from RevInfo; anything else is "typeCode:dotted/path"
// addressing a registry-declared metadata field for that document type.
type ColumnKey string

const (
	ColSize    ColumnKey = ":size"
	ColMtime   ColumnKey = ":mtime"
	ColType    ColumnKey = ":type"
	ColCreator ColumnKey = ":creator"
	ColComment ColumnKey = ":comment"
)

func (k ColumnKey) isBuiltin() bool { return strings.HasPrefix(string(k), ":") }

// RegistryLookup resolves a "typeCode:dotted/path" column key's declared
// metadata value, typically backed by a domain.Registry view over
// sys:registry. Implementations should be safe for concurrent use; Model
// serializes calls through its own worker goroutine regardless.
type RegistryLookup func(ctx context.Context, typeCode, path string) (value.Value, error)

// columnSource evaluates the configured column set for one fetched node.
// It owns a bounded LRU cache, keyed by
// typeCode + "\x00" + dottedPath so entries from different document types
// never collide.
type columnSource struct {
	lookup RegistryLookup
	cache  *lru.Cache[string, value.Value]
}

func newColumnSource(lookup RegistryLookup, size int) *columnSource {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, value.Value](size)
	return &columnSource{lookup: lookup, cache: c}
}

// evaluate computes one Value per configured column key, in order. A column
// that cannot be resolved (no RevInfo available yet, lookup failure, or a
// nil RegistryLookup for a non-builtin key) yields value.Null() rather than
// failing the whole fetch — a single bad column must not make the node
// un-fetchable.
func (cs *columnSource) evaluate(ctx context.Context, keys []ColumnKey, rev info.RevInfo, haveRev bool) []value.Value {
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = cs.evaluateOne(ctx, k, rev, haveRev)
	}
	return out
}

func (cs *columnSource) evaluateOne(ctx context.Context, k ColumnKey, rev info.RevInfo, haveRev bool) value.Value {
	if k.isBuiltin() {
		if !haveRev {
			return value.Null()
		}
		switch k {
		case ColSize:
			return value.Uint(rev.DataSize)
		case ColMtime:
			return value.Int(rev.Mtime.UnixNano())
		case ColType:
			return value.String(rev.Type)
		case ColCreator:
			return value.String(rev.Creator)
		case ColComment:
			return value.String(rev.Comment)
		default:
			return value.Null()
		}
	}

	typeCode, path, ok := strings.Cut(string(k), ":")
	if !ok || cs.lookup == nil {
		return value.Null()
	}
	cacheKey := typeCode + "\x00" + path
	if v, ok := cs.cache.Get(cacheKey); ok {
		return v
	}
	v, err := cs.lookup(ctx, typeCode, path)
	if err != nil {
		return value.Null()
	}
	cs.cache.Add(cacheKey, v)
	return v
}

// ColumnsFromRegistry adapts a per-type Registry metadata accessor (e.g.
// domain.Registry.Search combined with a dotted-path walk of the returned
// value) into a RegistryLookup. Kept separate from the
// domain package to avoid foldermodel depending on a specific Registry
// shape; callers wire whichever lookup fits their deployment.
func ColumnsFromRegistry(lookup func(ctx context.Context, typeCode, path string) (value.Value, error)) RegistryLookup {
	return RegistryLookup(lookup)
}
