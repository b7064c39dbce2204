package domain

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/value"
)

// Registry is the lazily-initialized, process-wide view over the sys:
// registry document: a dict keyed by UTI string, each entry itself a dict
// that may carry "conforming" (a list of parent UTIs), "exec" (a list of
// executable names), "icon" and "display" fields. Conformance is a
// recursive walk over "conforming" (pdsd.cpp's Registry::conformes), which
// is why results are cached here: the same handful of UTIs get asked about
// constantly from the folder model and CLI.
type Registry struct {
	w *watchedDoc

	cacheMu sync.Mutex
	cache   *lru.Cache[string, bool]
}

var (
	registryOnce sync.Once
	registryInst *Registry
	registryErr  error
)

// OpenRegistry returns the process-singleton Registry, opening and watching
// the backing document on first call.
func OpenRegistry(ctx context.Context, c *client.Client, sysStore, registryDoc ids.DocId) (*Registry, error) {
	registryOnce.Do(func() {
		w, err := openWatchedDoc(ctx, c, sysStore, registryDoc)
		if err != nil {
			registryErr = fmt.Errorf("domain: opening registry: %w", err)
			return
		}
		cache, err := lru.New[string, bool](512)
		if err != nil {
			registryErr = err
			return
		}
		reg := &Registry{w: w, cache: cache}
		w.onReload = reg.invalidateCache
		registryInst = reg
	})
	return registryInst, registryErr
}

func (r *Registry) entry(uti string) (value.Value, bool) {
	v, err := r.w.Snapshot()
	if err != nil {
		return value.Value{}, false
	}
	return v.Get(uti)
}

func (r *Registry) conformingList(uti string) []string {
	item, ok := r.entry(uti)
	if !ok {
		return nil
	}
	return strList(item, "conforming")
}

// Search looks up key on uti's own registry entry. If absent and recursive
// is true, it walks uti's "conforming" list depth-first and returns the
// first non-null hit; otherwise it returns defVal (pdsd.cpp:273-292).
func (r *Registry) Search(uti, key string, recursive bool, defVal value.Value) value.Value {
	item, ok := r.entry(uti)
	if !ok {
		return defVal
	}
	if v, ok := item.Get(key); ok {
		return v
	}
	if !recursive {
		return defVal
	}
	for _, parent := range strList(item, "conforming") {
		if v := r.Search(parent, key, true, value.Null()); v.Kind() != value.KindNull {
			return v
		}
	}
	return defVal
}

// Conformes reports whether uti is superClass itself, or reaches it by
// recursively following "conforming" entries (pdsd.cpp:294-307). Results are
// cached per (uti, superClass) pair until the registry document changes.
func (r *Registry) Conformes(uti, superClass string) bool {
	key := uti + "\x00" + superClass
	r.cacheMu.Lock()
	if cached, ok := r.cache.Get(key); ok {
		r.cacheMu.Unlock()
		return cached
	}
	r.cacheMu.Unlock()

	result := r.conformes(uti, superClass)

	r.cacheMu.Lock()
	r.cache.Add(key, result)
	r.cacheMu.Unlock()
	return result
}

func (r *Registry) conformes(uti, superClass string) bool {
	if uti == superClass {
		return true
	}
	for _, parent := range r.conformingList(uti) {
		if r.conformes(parent, superClass) {
			return true
		}
	}
	return false
}

// ConformingList returns uti's own immediate "conforming" list, without
// recursing into those UTIs' own parents (pdsd.cpp:309-317).
func (r *Registry) ConformingList(uti string) []string {
	return r.conformingList(uti)
}

// Executables returns uti's own "exec" list, extended with the executables
// of every UTI it conforms to, deduplicated (pdsd.cpp:319-333).
func (r *Registry) Executables(uti string) []string {
	item, ok := r.entry(uti)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(execs []string) {
		for _, e := range execs {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	add(strList(item, "exec"))
	for _, parent := range strList(item, "conforming") {
		add(r.Executables(parent))
	}
	return out
}

// Icon returns uti's icon resource path, searched recursively through its
// conforming chain, falling back to a generic placeholder.
func (r *Registry) Icon(uti string) string {
	v := r.Search(uti, "icon", true, value.String("uti/unknown.png"))
	s, _ := v.Str()
	return s
}

// Title returns uti's display name, searched recursively through its
// conforming chain, falling back to "unknown".
func (r *Registry) Title(uti string) string {
	v := r.Search(uti, "display", true, value.String("unknown"))
	s, _ := v.Str()
	return s
}

// invalidateCache is wired as the backing watchedDoc's onReload hook, so a
// cached conformance result never outlives the registry document revision
// it was computed from.
func (r *Registry) invalidateCache() {
	r.cacheMu.Lock()
	r.cache.Purge()
	r.cacheMu.Unlock()
}

// Close stops watching the registry document. It also resets the
// process-singleton so a later OpenRegistry call starts fresh — mainly
// useful for tests.
func (r *Registry) Close() error {
	err := r.w.Close()
	registryOnce = sync.Once{}
	registryInst = nil
	registryErr = nil
	return err
}
