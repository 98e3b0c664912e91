package domain

import (
	"net"
	"regexp"
	"strings"
	"time"
)

// Variant identifies one of the two alternatives under test.
type Variant string

const (
	// VariantNone indicates no variant, used by kinds that carry none.
	VariantNone Variant = ""
	// VariantA is the first alternative.
	VariantA Variant = "A"
	// VariantB is the second alternative.
	VariantB Variant = "B"
)

// IsValid reports whether the variant is A or B.
func (v Variant) IsValid() bool {
	return v == VariantA || v == VariantB
}

// Kind identifies the kind of a behavioral event.
type Kind string

const (
	// KindImpression records a visitor exposure to a variant.
	KindImpression Kind = "impression"
	// KindClick records a visitor interaction with a variant.
	KindClick Kind = "click"
	// KindDecision records the winner verdict for an experiment.
	KindDecision Kind = "decision"
	// KindDecisionApplied records the winner content being applied.
	KindDecisionApplied Kind = "decision_applied"
	// KindStale records an inconclusive terminal verdict.
	KindStale Kind = "stale"
)

// Kinds lists every known event kind.
func Kinds() []Kind {
	return []Kind{KindImpression, KindClick, KindDecision, KindDecisionApplied, KindStale}
}

// IsValid reports whether the kind is one of the five known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindImpression, KindClick, KindDecision, KindDecisionApplied, KindStale:
		return true
	}
	return false
}

// RequiresVariant reports whether events of this kind must carry a variant.
// Stale events carry none: there is no winner to attribute.
func (k Kind) RequiresVariant() bool {
	switch k {
	case KindImpression, KindClick, KindDecision, KindDecisionApplied:
		return true
	}
	return false
}

// NormalizeKind coerces unrecognized kinds to impression. The permissive
// fallback is kept for caller compatibility; the returned flag lets the
// gateway surface it as a validation warning instead of swallowing it.
func NormalizeKind(raw string) (kind Kind, coerced bool) {
	k := Kind(strings.TrimSpace(raw))
	if k.IsValid() {
		return k, false
	}
	return KindImpression, true
}

// Event is an immutable record of one behavioral observation. Events are
// created only by the ingestion gateway and are never updated or deleted
// individually; resets purge them in bulk per experiment.
type Event struct {
	// Time is when the event was recorded, UTC.
	Time time.Time
	// ContentRef identifies the owning content (e.g. a post id).
	ContentRef string
	// ExperimentID is the experiment this event belongs to.
	ExperimentID string
	// Variant is required for impression/click/decision/decision_applied
	// and empty for stale.
	Variant Variant
	// Kind identifies what was observed.
	Kind Kind
	// IP is the submitting client address, blanked when malformed.
	IP string
	// UserAgent is the submitting client user agent, stripped and truncated.
	UserAgent string
}

var experimentIDPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeExperimentID strips every character outside the identifier charset.
func SanitizeExperimentID(id string) string {
	return experimentIDPattern.ReplaceAllString(id, "")
}

// SanitizeIP returns the address when well-formed and blank otherwise.
func SanitizeIP(ip string) string {
	if net.ParseIP(strings.TrimSpace(ip)) == nil {
		return ""
	}
	return strings.TrimSpace(ip)
}

const maxUserAgentLength = 255

var markupPattern = regexp.MustCompile(`<[^>]*>?`)

// SanitizeUserAgent strips markup and truncates to 255 characters.
func SanitizeUserAgent(ua string) string {
	ua = markupPattern.ReplaceAllString(ua, "")
	ua = strings.TrimSpace(ua)
	if len(ua) > maxUserAgentLength {
		ua = ua[:maxUserAgentLength]
	}
	return ua
}
