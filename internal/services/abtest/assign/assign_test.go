package assign

import (
	"net/url"
	"testing"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
)

func alwaysA() Option {
	return WithRand(func() float64 { return 0.1 })
}

func alwaysB() Option {
	return WithRand(func() float64 { return 0.9 })
}

func TestAssignPersistsFreshDraw(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, alwaysA())

	if got := m.Assign("ab-1", ""); got != domain.VariantA {
		t.Fatalf("expected A, got %s", got)
	}

	// A later manager drawing B must still honor the persisted A.
	later := NewManager(store, alwaysB())
	if got := later.Assign("ab-1", ""); got != domain.VariantA {
		t.Fatalf("expected sticky A, got %s", got)
	}
}

func TestAssignGroupLockstep(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, alwaysB())

	first := m.Assign("ab-1", "hero")
	second := m.Assign("ab-2", "hero")
	third := m.Assign("ab-3", "hero")
	if first != second || second != third {
		t.Fatalf("expected identical group assignments, got %s %s %s", first, second, third)
	}

	// New page view, same store: still the same variant.
	again := NewManager(store, alwaysA())
	if got := again.Assign("ab-1", "hero"); got != first {
		t.Fatalf("expected persisted group assignment %s, got %s", first, got)
	}
}

func TestAssignGroupBeatsIndividualHistory(t *testing.T) {
	store := NewMemoryStore()
	store.Set("ab-ab-1", "A")
	store.Set("abg_hero", "B")

	m := NewManager(store, alwaysA())
	if got := m.Assign("ab-1", "hero"); got != domain.VariantB {
		t.Fatalf("expected group value to win, got %s", got)
	}
}

func TestAssignForcedPreviewNotPersisted(t *testing.T) {
	store := NewMemoryStore()
	overrides := ParseOverrides(url.Values{"ab_preview": {"ab-1:B,ab-2:A"}})
	m := NewManager(store, WithOverrides(overrides), alwaysA())

	if got := m.Assign("ab-1", ""); got != domain.VariantB {
		t.Fatalf("expected forced B, got %s", got)
	}
	if got := m.Assign("ab-2", ""); got != domain.VariantA {
		t.Fatalf("expected forced A, got %s", got)
	}
	if _, ok := store.Get("ab-ab-1"); ok {
		t.Fatal("expected forced preview to leave no persisted assignment")
	}

	// Without the override the same visitor gets a fresh persisted draw.
	plain := NewManager(store, alwaysA())
	if got := plain.Assign("ab-1", ""); got != domain.VariantA {
		t.Fatalf("expected fresh draw A, got %s", got)
	}
}

func TestAssignForcedGroupNotPersisted(t *testing.T) {
	store := NewMemoryStore()
	overrides := ParseOverrides(url.Values{"abgroup__hero": {"B"}})
	m := NewManager(store, WithOverrides(overrides), alwaysA())

	if got := m.Assign("ab-1", "hero"); got != domain.VariantB {
		t.Fatalf("expected forced group B, got %s", got)
	}
	if _, ok := store.Get("abg_hero"); ok {
		t.Fatal("expected forced group to leave no persisted assignment")
	}
}

func TestAssignIgnoresCorruptStoredValue(t *testing.T) {
	store := NewMemoryStore()
	store.Set("ab-ab-1", "Z")

	m := NewManager(store, alwaysB())
	if got := m.Assign("ab-1", ""); got != domain.VariantB {
		t.Fatalf("expected fresh draw over corrupt value, got %s", got)
	}
	if stored, _ := store.Get("ab-ab-1"); stored != "B" {
		t.Fatalf("expected corrupt value overwritten, got %q", stored)
	}
}

func TestParseOverrides(t *testing.T) {
	o := ParseOverrides(url.Values{
		"ab_preview":     {"ab-1:B,broken,ab-2:C,:A"},
		"abgroup__hero":  {"A"},
		"abgroup__":      {"B"},
		"abgroup__other": {"X"},
	})
	if v := o.individual["ab-1"]; v != domain.VariantB {
		t.Fatalf("expected ab-1 forced to B, got %q", v)
	}
	if _, ok := o.individual["ab-2"]; ok {
		t.Fatal("expected invalid variant pair skipped")
	}
	if v := o.groups["hero"]; v != domain.VariantA {
		t.Fatalf("expected hero forced to A, got %q", v)
	}
	if _, ok := o.groups["other"]; ok {
		t.Fatal("expected invalid group variant skipped")
	}
	if len(o.groups) != 1 {
		t.Fatalf("expected 1 group override, got %d", len(o.groups))
	}
}

func TestTrackerImpressionOncePerPageView(t *testing.T) {
	var sent []domain.Kind
	tracker := NewTracker(NewMemoryStore(), func(kind domain.Kind, experimentID string, variant domain.Variant) {
		sent = append(sent, kind)
	})

	if !tracker.Impression("ab-1", domain.VariantA) {
		t.Fatal("expected first impression sent")
	}
	if tracker.Impression("ab-1", domain.VariantA) {
		t.Fatal("expected repeat impression suppressed")
	}
	if !tracker.Impression("ab-2", domain.VariantB) {
		t.Fatal("expected impression for a different experiment")
	}
	if len(sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sent))
	}
}

func TestTrackerClickOncePerSession(t *testing.T) {
	session := NewMemoryStore()
	var sends int
	tracker := NewTracker(session, func(kind domain.Kind, experimentID string, variant domain.Variant) {
		sends++
	})

	if !tracker.Click("ab-1", domain.VariantA) {
		t.Fatal("expected first click sent")
	}
	if tracker.Click("ab-1", domain.VariantA) {
		t.Fatal("expected repeat click suppressed")
	}

	// A new page view shares the session store, so the click stays deduped.
	next := NewTracker(session, func(kind domain.Kind, experimentID string, variant domain.Variant) {
		sends++
	})
	if next.Click("ab-1", domain.VariantA) {
		t.Fatal("expected click suppressed across page views in one session")
	}
	if sends != 1 {
		t.Fatalf("expected exactly 1 send, got %d", sends)
	}
}
