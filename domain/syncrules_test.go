package domain

import "testing"

func newTestSyncRules() *SyncRules {
	return &SyncRules{w: &watchedDoc{}}
}

func TestSyncRulesSetModeAddsAndUpdates(t *testing.T) {
	s := newTestSyncRules()

	s.SetMode("store-a", "store-b", ModeFastForward)
	if got := s.Mode("store-a", "store-b"); got != ModeFastForward {
		t.Fatalf("got %v want fast-forward", got)
	}

	s.SetMode("store-a", "store-b", ModeMerge)
	if got := s.Mode("store-a", "store-b"); got != ModeMerge {
		t.Fatalf("update in place: got %v want merge", got)
	}
	if len(s.All()) != 1 {
		t.Fatalf("update must not duplicate the entry, got %v", s.All())
	}
}

func TestSyncRulesSetModeNoneRemovesEntry(t *testing.T) {
	s := newTestSyncRules()
	s.SetMode("store-a", "store-b", ModeLatest)
	s.SetDescription("store-a", "store-b", "nightly mirror")

	s.SetMode("store-a", "store-b", ModeNone)

	if got := s.Mode("store-a", "store-b"); got != ModeNone {
		t.Fatalf("got %v want none", got)
	}
	if len(s.All()) != 0 {
		t.Fatalf("mode None must remove the entry outright, got %v", s.All())
	}
}

func TestSyncRulesSetDescriptionIsNoopWithoutExistingRule(t *testing.T) {
	s := newTestSyncRules()
	s.SetDescription("x", "y", "ignored")
	if len(s.All()) != 0 {
		t.Fatalf("describing a nonexistent rule must not create one")
	}
	if got := s.Description("x", "y"); got != "" {
		t.Fatalf("got %q want empty", got)
	}
}
