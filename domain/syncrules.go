package domain

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/ids"
	"github.com/orbaslabs/peerdrive/value"
)

// SyncMode enumerates the replication policy between an ordered pair of
// stores, as declared by one entry of sys:syncrules.
type SyncMode int

const (
	// ModeNone means no automatic synchronization is configured for the
	// pair; adding a rule with this mode removes any existing entry.
	ModeNone SyncMode = iota
	ModeFastForward
	ModeLatest
	ModeMerge
)

func (m SyncMode) String() string {
	switch m {
	case ModeFastForward:
		return "fast-forward"
	case ModeLatest:
		return "latest"
	case ModeMerge:
		return "merge"
	default:
		return "none"
	}
}

func syncModeFromString(s string) SyncMode {
	switch s {
	case "fast-forward":
		return ModeFastForward
	case "latest":
		return ModeLatest
	case "merge":
		return ModeMerge
	default:
		return ModeNone
	}
}

// SyncRuleEntry is one configured ordered-pair rule.
type SyncRuleEntry struct {
	From        string
	To          string
	Mode        SyncMode
	Description string
}

// SyncRules is a self-maintaining view over the sys:syncrules document: the
// per-(from,to) store-pair replication policy, plus a local working
// copy that SetMode/SetDescription edit; Save commits those edits
// (syncrules.cpp's SyncRules class).
type SyncRules struct {
	w *watchedDoc

	mu    sync.Mutex
	draft []SyncRuleEntry
}

// OpenSyncRules reads and then watches the syncrules document.
func OpenSyncRules(ctx context.Context, c *client.Client, sysStore, syncrulesDoc ids.DocId) (*SyncRules, error) {
	w, err := openWatchedDoc(ctx, c, sysStore, syncrulesDoc)
	if err != nil {
		return nil, fmt.Errorf("domain: opening syncrules: %w", err)
	}
	s := &SyncRules{w: w}
	s.draft, _ = entriesFromSnapshot(w)
	return s, nil
}

// Close stops watching the syncrules document.
func (s *SyncRules) Close() error { return s.w.Close() }

func entriesFromSnapshot(w *watchedDoc) ([]SyncRuleEntry, error) {
	v, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	rules, ok := v.Get("rules")
	if !ok {
		return nil, nil
	}
	items, ok := rules.List()
	if !ok {
		return nil, fmt.Errorf("domain: syncrules \"rules\" is not a list")
	}
	out := make([]SyncRuleEntry, 0, len(items))
	for _, item := range items {
		out = append(out, SyncRuleEntry{
			From:        str(item, "from"),
			To:          str(item, "to"),
			Mode:        syncModeFromString(str(item, "mode")),
			Description: str(item, "description"),
		})
	}
	return out, nil
}

// Load discards any unsaved local edits, replacing the working copy with
// the document's current head.
func (s *SyncRules) Load(ctx context.Context) error {
	if err := s.w.reload(ctx); err != nil {
		return err
	}
	entries, err := entriesFromSnapshot(s.w)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.draft = entries
	s.mu.Unlock()
	return nil
}

// Save commits the working copy, including every SetMode/SetDescription
// edit since the last Load, as a new syncrules revision.
func (s *SyncRules) Save(ctx context.Context) error {
	s.mu.Lock()
	items := make([]value.Value, 0, len(s.draft))
	for _, e := range s.draft {
		fields := map[string]value.Value{
			"from": value.String(e.From),
			"to":   value.String(e.To),
			"mode": value.String(e.Mode.String()),
		}
		if e.Description != "" {
			fields["description"] = value.String(e.Description)
		}
		items = append(items, value.Dict(fields))
	}
	s.mu.Unlock()

	root := value.Dict(map[string]value.Value{"rules": value.List(items...)})
	return s.w.save(ctx, root)
}

func (s *SyncRules) index(from, to string) int {
	for i, e := range s.draft {
		if e.From == from && e.To == to {
			return i
		}
	}
	return -1
}

// Mode reports the configured policy for replicating from -> to. A pair with
// no matching entry reports ModeNone, matching an explicitly-removed rule
//.
func (s *SyncRules) Mode(from, to string) SyncMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(from, to); i >= 0 {
		return s.draft[i].Mode
	}
	return ModeNone
}

// Description returns the free-text description configured for the ordered
// pair, or "" if none is configured.
func (s *SyncRules) Description(from, to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(from, to); i >= 0 {
		return s.draft[i].Description
	}
	return ""
}

// SetMode sets the replication policy for from -> to in the working copy;
// call Save to persist it. Setting ModeNone removes the entry outright
// rather than recording it with a none policy (syncrules.cpp's
// SyncRules::setMode).
func (s *SyncRules) SetMode(from, to string, mode SyncMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(from, to)

	if mode == ModeNone {
		if i >= 0 {
			s.draft = append(s.draft[:i], s.draft[i+1:]...)
		}
		return
	}

	if i < 0 {
		s.draft = append(s.draft, SyncRuleEntry{From: from, To: to})
		i = len(s.draft) - 1
	}
	s.draft[i].Mode = mode
}

// SetDescription sets the free-text description for an already-configured
// from -> to pair in the working copy; call Save to persist it. It is a
// no-op if no rule exists for the pair yet (syncrules.cpp's
// SyncRules::setDescription).
func (s *SyncRules) SetDescription(from, to, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(from, to); i >= 0 {
		s.draft[i].Description = description
	}
}

// All returns every configured rule in the working copy.
func (s *SyncRules) All() []SyncRuleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SyncRuleEntry, len(s.draft))
	copy(out, s.draft)
	return out
}
