package domain

import (
	"strings"
	"testing"
)

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		raw     string
		want    Kind
		coerced bool
	}{
		{"impression", KindImpression, false},
		{"click", KindClick, false},
		{"decision", KindDecision, false},
		{"decision_applied", KindDecisionApplied, false},
		{"stale", KindStale, false},
		{"", KindImpression, true},
		{"pageview", KindImpression, true},
		{"CLICK", KindImpression, true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			kind, coerced := NormalizeKind(tc.raw)
			if kind != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, kind)
			}
			if coerced != tc.coerced {
				t.Fatalf("expected coerced=%v, got %v", tc.coerced, coerced)
			}
		})
	}
}

func TestKindRequiresVariant(t *testing.T) {
	for _, k := range []Kind{KindImpression, KindClick, KindDecision, KindDecisionApplied} {
		if !k.RequiresVariant() {
			t.Fatalf("expected %s to require a variant", k)
		}
	}
	if KindStale.RequiresVariant() {
		t.Fatal("stale events must not carry a variant")
	}
}

func TestSanitizeExperimentID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ab-4f2c91d3a", "ab-4f2c91d3a"},
		{"hero_cta", "hero_cta"},
		{"ab'; DROP TABLE events;--", "abDROPTABLEevents--"},
		{"<script>x</script>", "scriptxscript"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SanitizeExperimentID(tc.raw); got != tc.want {
			t.Fatalf("sanitize %q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}

func TestSanitizeIP(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"192.0.2.1", "192.0.2.1"},
		{"2001:db8::1", "2001:db8::1"},
		{"not-an-ip", ""},
		{"192.0.2.1; rm -rf /", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SanitizeIP(tc.raw); got != tc.want {
			t.Fatalf("sanitize ip %q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}

func TestSanitizeUserAgent(t *testing.T) {
	if got := SanitizeUserAgent("Mozilla/5.0 <script>alert(1)</script> Safari"); strings.Contains(got, "<") {
		t.Fatalf("expected markup stripped, got %q", got)
	}

	long := strings.Repeat("x", 400)
	if got := SanitizeUserAgent(long); len(got) != 255 {
		t.Fatalf("expected truncation to 255, got %d", len(got))
	}
}

func TestVariantsComplete(t *testing.T) {
	exp := Experiment{VariantA: `{"text":"Buy now"}`, VariantB: ""}
	if exp.VariantsComplete() {
		t.Fatal("expected incomplete variants with empty B")
	}
	exp.VariantB = `{"text":"Get started"}`
	if !exp.VariantsComplete() {
		t.Fatal("expected complete variants")
	}
}

func TestNormalizeExperimentKey(t *testing.T) {
	if _, _, err := NormalizeExperimentKey("", "ab-1"); err != ErrEmptyContentRef {
		t.Fatalf("expected ErrEmptyContentRef, got %v", err)
	}
	if _, _, err := NormalizeExperimentKey("42", "!!!"); err != ErrEmptyExperimentID {
		t.Fatalf("expected ErrEmptyExperimentID, got %v", err)
	}
	ref, id, err := NormalizeExperimentKey(" 42 ", "ab-1?x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "42" || id != "ab-1x" {
		t.Fatalf("unexpected normalization: %q %q", ref, id)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateFinishedWinner, StateFinishedStale, StateApplied} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateEnabled, StateRunning} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}
