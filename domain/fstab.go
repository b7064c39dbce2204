package domain

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/value"
)

// FSTabEntry is one configured store mount, keyed by label in the backing
// document (pdsd.cpp's FSTab: a dict of label -> {src, type, options,
// credentials, auto}).
type FSTabEntry struct {
	Label       string
	Src         string
	Type        string
	Options     string
	Credentials string
	Auto        bool
}

// FSTab is a self-maintaining view over the sys:fstab document, plus a
// local working copy that Add/Remove/SetAutoMounted edit; Save commits
// those edits as a new revision, and Load discards them in favor of the
// document's current head (pdsd.cpp:66-220).
type FSTab struct {
	w *watchedDoc

	mu    sync.Mutex
	draft value.Value
}

// OpenFSTab reads and then watches the fstab document living on the
// sys-store.
func OpenFSTab(ctx context.Context, c *client.Client, sysStore, fstabDoc ids.DocId) (*FSTab, error) {
	w, err := openWatchedDoc(ctx, c, sysStore, fstabDoc)
	if err != nil {
		return nil, fmt.Errorf("domain: opening fstab: %w", err)
	}
	snap, _ := w.Snapshot()
	return &FSTab{w: w, draft: snap}, nil
}

// Close stops watching the fstab document.
func (f *FSTab) Close() error { return f.w.Close() }

func str(v value.Value, key string) string {
	field, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, _ := field.Str()
	return s
}

func strDefault(v value.Value, key, def string) string {
	field, ok := v.Get(key)
	if !ok {
		return def
	}
	s, ok := field.Str()
	if !ok {
		return def
	}
	return s
}

func boolDefault(v value.Value, key string, def bool) bool {
	field, ok := v.Get(key)
	if !ok {
		return def
	}
	b, ok := field.Bool()
	if !ok {
		return def
	}
	return b
}

func strList(v value.Value, key string) []string {
	field, ok := v.Get(key)
	if !ok {
		return nil
	}
	items, ok := field.List()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Load discards any unsaved local edits, replacing the working copy with
// the document's current head (pdsd.cpp's FSTab::load, the "reset to HEAD"
// branch).
func (f *FSTab) Load(ctx context.Context) error {
	if err := f.w.reload(ctx); err != nil {
		return err
	}
	snap, err := f.w.Snapshot()
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.draft = snap
	f.mu.Unlock()
	return nil
}

// Save commits the working copy, including every Add/Remove/SetAutoMounted
// edit since the last Load, as a new fstab revision (pdsd.cpp's
// FSTab::save).
func (f *FSTab) Save(ctx context.Context) error {
	f.mu.Lock()
	draft := f.draft
	f.mu.Unlock()
	return f.w.save(ctx, draft)
}

// KnownLabels returns every configured mount label in the working copy.
func (f *FSTab) KnownLabels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Keys()
}

func (f *FSTab) labelEntry(label string) (value.Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Get(label)
}

// Entries returns every configured mount in the working copy.
func (f *FSTab) Entries() []FSTabEntry {
	labels := f.KnownLabels()
	out := make([]FSTabEntry, 0, len(labels))
	for _, label := range labels {
		item, ok := f.labelEntry(label)
		if !ok {
			continue
		}
		out = append(out, FSTabEntry{
			Label:       label,
			Src:         str(item, "src"),
			Type:        strDefault(item, "type", "file"),
			Options:     strDefault(item, "options", ""),
			Credentials: strDefault(item, "credentials", ""),
			Auto:        boolDefault(item, "auto", false),
		})
	}
	return out
}

// Add registers a new mount under label in the working copy; call Save to
// persist it. It fails if label is already configured (pdsd.cpp's
// FSTab::add).
func (f *FSTab) Add(label, src, typ, options, credentials string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.draft.Get(label); ok {
		return fmt.Errorf("domain: fstab: label %q already configured", label)
	}

	fields := map[string]value.Value{"src": value.String(src)}
	if typ != "" && typ != "file" {
		fields["type"] = value.String(typ)
	}
	if options != "" {
		fields["options"] = value.String(options)
	}
	if credentials != "" {
		fields["credentials"] = value.String(credentials)
	}

	f.draft = setDictEntry(f.draft, label, value.Dict(fields))
	return nil
}

// Remove deletes label from the working copy; call Save to persist it. It
// fails if label is not configured (pdsd.cpp's FSTab::remove).
func (f *FSTab) Remove(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.draft.Get(label); !ok {
		return fmt.Errorf("domain: fstab: label %q not configured", label)
	}
	f.draft = deleteDictEntry(f.draft, label)
	return nil
}

// Src returns label's configured source string, or "" if label is unknown.
func (f *FSTab) Src(label string) string {
	item, ok := f.labelEntry(label)
	if !ok {
		return ""
	}
	return str(item, "src")
}

// Type returns label's mount type, defaulting to "file".
func (f *FSTab) Type(label string) string {
	item, ok := f.labelEntry(label)
	if !ok {
		return ""
	}
	return strDefault(item, "type", "file")
}

// Options returns label's mount options string.
func (f *FSTab) Options(label string) string {
	item, ok := f.labelEntry(label)
	if !ok {
		return ""
	}
	return strDefault(item, "options", "")
}

// Credentials returns label's stored credentials string.
func (f *FSTab) Credentials(label string) string {
	item, ok := f.labelEntry(label)
	if !ok {
		return ""
	}
	return strDefault(item, "credentials", "")
}

// AutoMounted reports whether label should be mounted automatically at
// startup.
func (f *FSTab) AutoMounted(label string) bool {
	item, ok := f.labelEntry(label)
	if !ok {
		return false
	}
	return boolDefault(item, "auto", false)
}

// SetAutoMounted flips label's auto-mount flag in the working copy; call
// Save to persist it. It fails if label is not configured (pdsd.cpp's
// FSTab::setAutoMounted).
func (f *FSTab) SetAutoMounted(label string, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.draft.Get(label)
	if !ok {
		return fmt.Errorf("domain: fstab: label %q not configured", label)
	}
	fields := dictEntries(item)
	fields["auto"] = value.Bool(enable)
	f.draft = setDictEntry(f.draft, label, value.Dict(fields))
	return nil
}
